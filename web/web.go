package web

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.bug.st/serial/enumerator"

	"github.com/TotallyMonica/swinit/swinit"
	"github.com/TotallyMonica/swinit/swlogging"
	"github.com/TotallyMonica/swinit/templates"
)

type StatusSource interface {
	Status() swinit.Status
}

type PortLister func() ([]*enumerator.PortDetails, error)

type statusPage struct {
	Device string
	Status swinit.Status
}

type portsPage struct {
	Device string
	Ports  []*enumerator.PortDetails
}

// Server shows what the bootstrapper is doing to anyone on the bench network.
// It never touches the console.
type Server struct {
	status StatusSource
	device string
	ports  PortLister
	log    *swlogging.Logger

	router     *mux.Router
	statusTmpl *template.Template
	portsTmpl  *template.Template
	httpServer *http.Server
}

type Option func(*Server)

func WithPortLister(ports PortLister) Option {
	return func(s *Server) {
		s.ports = ports
	}
}

func New(status StatusSource, device string, log *swlogging.Logger, opts ...Option) *Server {
	s := &Server{
		status: status,
		device: device,
		ports:  enumerator.GetDetailedPortsList,
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.statusTmpl = template.Must(template.Must(template.New("status").Parse(templates.Layout)).Parse(templates.Status))
	s.portsTmpl = template.Must(template.Must(template.New("ports").Parse(templates.Layout)).Parse(templates.Ports))

	s.router = mux.NewRouter()
	s.router.StrictSlash(true)
	s.router.HandleFunc("/", s.statusHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ports/", s.portsHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/api/status", s.apiStatusHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/api/ports", s.apiPortsHandler).Methods(http.MethodGet)
	s.router.Use(s.logRequests)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Infof("Status page listening on %s", addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debugf("%s requested %s %s", r.RemoteAddr, r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	data := statusPage{
		Device: s.device,
		Status: s.status.Status(),
	}
	if err := s.statusTmpl.ExecuteTemplate(w, "layout", data); err != nil {
		s.log.Errorf("Rendering status page: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (s *Server) portsHandler(w http.ResponseWriter, r *http.Request) {
	ports, err := s.ports()
	if err != nil {
		s.log.Errorf("Listing serial ports: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	data := portsPage{
		Device: s.device,
		Ports:  ports,
	}
	if err := s.portsTmpl.ExecuteTemplate(w, "layout", data); err != nil {
		s.log.Errorf("Rendering ports page: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (s *Server) apiStatusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.status.Status())
}

func (s *Server) apiPortsHandler(w http.ResponseWriter, r *http.Request) {
	ports, err := s.ports()
	if err != nil {
		s.log.Errorf("Listing serial ports: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if ports == nil {
		ports = []*enumerator.PortDetails{}
	}
	s.writeJSON(w, ports)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("Encoding response: %v", err)
	}
}
