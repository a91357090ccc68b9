package mailer

import (
	"fmt"
	"time"
)

// CertificateRequestEmail is the invitation sent to a crew member with the
// tokenized self upload link.
func CertificateRequestEmail(crewName, vesselName, uploadUrl string, expiresAt time.Time) (subject, body string) {
	subject = fmt.Sprintf("Certificate upload request for %v", vesselName)
	body = wrap(subject, fmt.Sprintf(`
		<p>Dear %v,</p>
		<p>Please upload your current certificates for your position aboard <b>%v</b>.</p>
		<p><a class="btn" href="%v">Upload certificates</a></p>
		<p>This link expires on %v.</p>`,
		crewName, vesselName, uploadUrl, expiresAt.Format("2 January 2006")))
	return subject, body
}

// ExpiryDigestEmail summarizes expired and expiring certificates for one
// vessel, sent to the fleet admin by the daily digest job.
func ExpiryDigestEmail(vesselName string, expired, expiring int) (subject, body string) {
	subject = fmt.Sprintf("Certificate expiry digest for %v", vesselName)
	body = wrap(subject, fmt.Sprintf(`
		<p>Vessel <b>%v</b> has <b>%d</b> expired certificate(s) and <b>%d</b>
		certificate(s) expiring within the next 30 days.</p>
		<p>Please review the vessel readiness report.</p>`,
		vesselName, expired, expiring))
	return subject, body
}

func wrap(title, content string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Helvetica, Arial, sans-serif; color: #1a2233;">
	<div style="max-width: 600px; margin: 20px auto;">
		<h2>%v</h2>
		%v
	</div>
</body>
</html>`, title, content)
}
