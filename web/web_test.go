package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"

	"github.com/TotallyMonica/swinit/swinit"
	"github.com/TotallyMonica/swinit/swlogging"
)

type fixedStatus swinit.Status

func (f fixedStatus) Status() swinit.Status {
	return swinit.Status(f)
}

var testStatus = fixedStatus{
	State:     "post boot prompt handling",
	SessionID: "0b0e2f5c-7a55-4a8e-a3a4-9c6f5b1f2d11",
	Started:   time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
	Model:     "WS-C3850-12S",
	Family:    "Cisco 3850",
	Role:      "primary",
	Mgmt:      "up",
	Completed: 4,
	Timeouts:  1,
	LastEvent: "detected",
	LastError: "device timed out after 10m0s (partial line \"\")",
}

var testPorts = []*enumerator.PortDetails{{
	Name:         "/dev/ttyUSB0",
	IsUSB:        true,
	VID:          "0403",
	PID:          "6001",
	SerialNumber: "FT123456",
	Product:      "FT232R USB UART",
}, {
	Name: "/dev/ttyS0",
}}

func newTestServer(ports PortLister) *Server {
	return New(testStatus, "/dev/ttyUSB0", swlogging.Discard("web_test"), WithPortLister(ports))
}

func listPorts() ([]*enumerator.PortDetails, error) {
	return testPorts, nil
}

type testParams struct {
	name   string
	method string
	path   string
	want   int
}

func buildConditions(paths []string, allowedMethods []string) []testParams {
	methodList := []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE"}

	tests := make([]testParams, 0)
	for _, path := range paths {
		for _, method := range methodList {
			want := http.StatusMethodNotAllowed
			for _, allowed := range allowedMethods {
				if method == allowed {
					want = http.StatusOK
				}
			}
			tests = append(tests, testParams{
				name:   fmt.Sprintf("%s %s", method, path),
				method: method,
				path:   path,
				want:   want,
			})
		}
	}
	return tests
}

func TestEndpoints(t *testing.T) {
	handler := newTestServer(listPorts).Handler()

	for _, tt := range buildConditions([]string{"/", "/ports/", "/api/status", "/api/ports"}, []string{"GET"}) {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestUnknownPath(t *testing.T) {
	handler := newTestServer(listPorts).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/jobs/1/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusPage(t *testing.T) {
	handler := newTestServer(listPorts).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, want := range []string{
		"Console /dev/ttyUSB0",
		"post boot prompt handling",
		"0b0e2f5c-7a55-4a8e-a3a4-9c6f5b1f2d11",
		"12:30:00",
		"WS-C3850-12S",
		"Completed: 4",
		"Timed out: 1",
		`http-equiv="refresh"`,
	} {
		assert.Contains(t, body, want)
	}
}

func TestAPIStatus(t *testing.T) {
	handler := newTestServer(listPorts).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got swinit.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, swinit.Status(testStatus), got)
}

func TestPortsPage(t *testing.T) {
	handler := newTestServer(listPorts).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/ports/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "Serial ports present: 2")
	assert.Contains(t, body, "FT232R USB UART")
	assert.Contains(t, body, "6001:0403")
	assert.NotContains(t, body, "http-equiv")
}

func TestAPIPorts(t *testing.T) {
	tests := []struct {
		name  string
		ports PortLister
		want  int
		count int
	}{{
		name:  "Ports found",
		ports: listPorts,
		want:  http.StatusOK,
		count: 2,
	}, {
		name:  "No ports",
		ports: func() ([]*enumerator.PortDetails, error) { return nil, nil },
		want:  http.StatusOK,
		count: 0,
	}, {
		name:  "Enumeration fails",
		ports: func() ([]*enumerator.PortDetails, error) { return nil, errors.New("no udev") },
		want:  http.StatusInternalServerError,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestServer(tt.ports).Handler()

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/ports", nil))
			require.Equal(t, tt.want, rec.Code)
			if tt.want != http.StatusOK {
				return
			}

			var got []enumerator.PortDetails
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Len(t, got, tt.count)
		})
	}
}
