package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"

	"crewcert/fleet/compliance"
	"crewcert/fleet/services"

	"github.com/go-chi/chi/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("request failed with status %d and res '%v'", e.code, e.body)
}

func statusOf(err error) int {
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.code
	}
	return 0
}

type client struct {
	api    chi.Router
	token  string
	userId string
}

func do[T any](c *client, method, endpoint string, body io.Reader, contentType string) (T, error) {
	req := httptest.NewRequest(method, endpoint, body)
	if c.token != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %v", c.token))
	}
	if contentType != "" {
		req.Header.Add("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	var data T

	res := w.Result()
	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return data, ErrUnauthorized
		}
		return data, &statusError{code: res.StatusCode, body: w.Body.String()}
	}

	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return data, err
	}

	return data, nil
}

func get[T any](c *client, endpoint string) (T, error) {
	return do[T](c, "GET", endpoint, nil, "")
}

type NoBody struct{}

func post[T any](c *client, endpoint string, body interface{}) (T, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			var zero T
			return zero, fmt.Errorf("json encode error: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	return do[T](c, "POST", endpoint, reader, "")
}

func deleteReq(c *client, endpoint string) error {
	_, err := do[NoBody](c, "DELETE", endpoint, nil, "")
	return err
}

func postMultipart[T any](c *client, endpoint string, fields map[string]string, fileField, filename string, fileData []byte) (T, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			var zero T
			return zero, err
		}
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, filename)
		if err != nil {
			var zero T
			return zero, err
		}
		if _, err := part.Write(fileData); err != nil {
			var zero T
			return zero, err
		}
	}
	if err := writer.Close(); err != nil {
		var zero T
		return zero, err
	}

	return do[T](c, "POST", endpoint, &buf, writer.FormDataContentType())
}

func (c *client) login(email, password string) error {
	req := httptest.NewRequest("GET", "/user/login", nil)
	req.SetBasicAuth(email, password)
	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	res := w.Result()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed with status %d and res '%v'", res.StatusCode, w.Body.String())
	}

	var data map[string]string
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return err
	}

	c.token = data["access_token"]
	c.userId = data["user_id"]

	return nil
}

func (c *client) createUser(username, email, password string, isAdmin bool) (string, error) {
	data, err := post[map[string]string](c, "/user/create", map[string]interface{}{
		"username": username, "email": email, "password": password, "is_admin": isAdmin,
	})
	if err != nil {
		return "", err
	}
	return data["user_id"], nil
}

func (c *client) createVessel(name, imo string) (string, error) {
	data, err := post[map[string]string](c, "/vessel/create", map[string]string{
		"name": name, "imo": imo,
	})
	if err != nil {
		return "", err
	}
	return data["vessel_id"], nil
}

func (c *client) listVessels() ([]services.VesselInfo, error) {
	return get[[]services.VesselInfo](c, "/vessel/list")
}

func (c *client) createRole(name string) (string, int, error) {
	data, err := post[map[string]interface{}](c, "/role/create", map[string]string{"name": name})
	if err != nil {
		return "", 0, err
	}
	position, _ := data["position"].(float64)
	roleId, _ := data["role_id"].(string)
	return roleId, int(position), nil
}

func (c *client) createCertificateType(code, name string, validityMonths *int) (string, error) {
	data, err := post[map[string]string](c, "/certificate-type/create", map[string]interface{}{
		"code": code, "name": name, "validity_period_months": validityMonths,
	})
	if err != nil {
		return "", err
	}
	return data["type_id"], nil
}

func (c *client) listCertificateTypes() ([]services.CertificateTypeInfo, error) {
	return get[[]services.CertificateTypeInfo](c, "/certificate-type/list")
}

func (c *client) setMatrixCell(vesselId, roleId, typeId, level string) error {
	_, err := post[NoBody](c, fmt.Sprintf("/matrix/%v/cell", vesselId), map[string]string{
		"role_id": roleId, "certificate_type_id": typeId, "level": level,
	})
	return err
}

func (c *client) copyMatrix(destVesselId, sourceVesselId string, overwrite bool) (map[string]int, error) {
	return post[map[string]int](c, fmt.Sprintf("/matrix/%v/copy", destVesselId), map[string]interface{}{
		"source_vessel_id": sourceVesselId, "overwrite": overwrite,
	})
}

type matrixView struct {
	VesselId string                    `json:"vessel_id"`
	Cells    []services.MatrixCellInfo `json:"cells"`
}

func (c *client) getMatrix(vesselId string) (matrixView, error) {
	return get[matrixView](c, fmt.Sprintf("/matrix/%v", vesselId))
}

func (c *client) clearMatrixCell(vesselId, roleId, typeId string) error {
	body, err := json.Marshal(map[string]string{"role_id": roleId, "certificate_type_id": typeId})
	if err != nil {
		return err
	}
	_, err = do[NoBody](c, "DELETE", fmt.Sprintf("/matrix/%v/cell", vesselId), bytes.NewReader(body), "")
	return err
}

func (c *client) createCrewMember(vesselId, roleId, firstName, lastName, email string) (string, error) {
	data, err := post[map[string]string](c, "/crew/create", map[string]string{
		"vessel_id": vesselId, "role_id": roleId,
		"first_name": firstName, "last_name": lastName, "email": email,
	})
	if err != nil {
		return "", err
	}
	return data["crew_member_id"], nil
}

func (c *client) createCertificate(crewMemberId, typeId, number, issueDate, expiryDate string) (string, error) {
	data, err := post[map[string]string](c, "/certificate/create", map[string]string{
		"crew_member_id": crewMemberId, "certificate_type_id": typeId,
		"certificate_number": number, "issue_date": issueDate, "expiry_date": expiryDate,
	})
	if err != nil {
		return "", err
	}
	return data["certificate_id"], nil
}

func (c *client) verifyCertificate(certId string) error {
	_, err := post[NoBody](c, fmt.Sprintf("/certificate/%v/verify", certId), nil)
	return err
}

func (c *client) rejectCertificate(certId, reason string) error {
	_, err := post[NoBody](c, fmt.Sprintf("/certificate/%v/reject", certId), map[string]string{"reason": reason})
	return err
}

func (c *client) getCertificate(certId string) (services.CertificateInfo, error) {
	return get[services.CertificateInfo](c, fmt.Sprintf("/certificate/%v", certId))
}

// downloadDocument bypasses the JSON helpers since the endpoint streams the
// raw file back.
func (c *client) downloadDocument(certId string) ([]byte, string, error) {
	req := httptest.NewRequest("GET", fmt.Sprintf("/certificate/%v/document", certId), nil)
	if c.token != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %v", c.token))
	}
	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	res := w.Result()
	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return nil, "", ErrUnauthorized
		}
		return nil, "", &statusError{code: res.StatusCode, body: w.Body.String()}
	}
	return w.Body.Bytes(), res.Header.Get("Content-Type"), nil
}

func (c *client) listCertificates(query string) ([]services.CertificateInfo, error) {
	endpoint := "/certificate/list"
	if query != "" {
		endpoint += "?" + query
	}
	return get[[]services.CertificateInfo](c, endpoint)
}

func (c *client) readiness(vesselId string) (readinessView, error) {
	return get[readinessView](c, fmt.Sprintf("/vessel/%v/readiness", vesselId))
}

func (c *client) report(vesselId string) (compliance.VesselReport, error) {
	return get[compliance.VesselReport](c, fmt.Sprintf("/vessel/%v/report", vesselId))
}

func (c *client) sendRequests(vesselId string) (services.BulkSendSummary, error) {
	return post[services.BulkSendSummary](c, fmt.Sprintf("/vessel/%v/requests/send", vesselId), nil)
}

func (c *client) createRequest(crewMemberId string) (map[string]interface{}, error) {
	return post[map[string]interface{}](c, "/request/create", map[string]string{"crew_member_id": crewMemberId})
}

func (c *client) crewCompliance(crewMemberId string) (map[string]interface{}, error) {
	return get[map[string]interface{}](c, fmt.Sprintf("/crew/%v/compliance", crewMemberId))
}

func (c *client) listRequests(crewMemberId string) ([]services.RequestInfo, error) {
	endpoint := "/request/list"
	if crewMemberId != "" {
		endpoint += "?crew_member_id=" + crewMemberId
	}
	return get[[]services.RequestInfo](c, endpoint)
}

func (c *client) uploadDocument(certId, filename string, data []byte) error {
	_, err := postMultipart[NoBody](c, fmt.Sprintf("/certificate/%v/document", certId), nil, "document", filename, data)
	return err
}

func (c *client) dashboardStats() (map[string]int, error) {
	return get[map[string]int](c, "/dashboard/stats")
}

type portalView struct {
	CrewName     string `json:"crew_name"`
	VesselName   string `json:"vessel_name"`
	Requirements []struct {
		CertificateTypeId string  `json:"certificate_type_id"`
		Code              string  `json:"code"`
		Level             string  `json:"level"`
		CurrentStatus     *string `json:"current_status"`
	} `json:"requirements"`
}

func (c *client) getPortal(token string) (portalView, error) {
	return get[portalView](c, fmt.Sprintf("/upload/%v", token))
}

func (c *client) submitPortalCertificate(token, typeId string, fields map[string]string, fileData []byte) (string, error) {
	all := map[string]string{"certificate_type_id": typeId}
	for k, v := range fields {
		all[k] = v
	}
	data, err := postMultipart[map[string]string](c, fmt.Sprintf("/upload/%v/certificates", token), all, "document", "cert.pdf", fileData)
	if err != nil {
		return "", err
	}
	return data["certificate_id"], nil
}

func (c *client) completePortal(token string) error {
	_, err := post[NoBody](c, fmt.Sprintf("/upload/%v/complete", token), nil)
	return err
}

type readinessView struct {
	VesselId string `json:"vessel_id"`
	Rows     []struct {
		CrewMemberId string `json:"crew_member_id"`
		CrewName     string `json:"crew_name"`
		RoleName     string `json:"role_name"`
		Cells        map[string]struct {
			Status        string  `json:"status"`
			Mandatory     bool    `json:"mandatory"`
			CertificateId *string `json:"certificate_id"`
		} `json:"cells"`
	} `json:"rows"`
	Stats compliance.VesselStats `json:"stats"`
}
