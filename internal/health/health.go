// Package health tracks whether the clinic backend is reachable and
// publishes it over the gRPC health protocol and GET /healthz.
package health

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name clients pass to grpc.health.v1.Health/Check.
const Service = "clinic.Backend"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Status struct {
	Serving   bool      `json:"serving"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

type Prober struct {
	pinger  Pinger
	srv     *grpchealth.Server
	timeout time.Duration
	cron    *cron.Cron

	mu   sync.RWMutex
	last Status
}

func NewProber(p Pinger, srv *grpchealth.Server, timeout time.Duration) *Prober {
	srv.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Prober{pinger: p, srv: srv, timeout: timeout}
}

// Check pings the backend once and publishes the result.
func (p *Prober) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	st := Status{CheckedAt: time.Now()}
	if err := p.pinger.Ping(ctx); err != nil {
		st.Error = err.Error()
	} else {
		st.Serving = true
	}

	p.mu.Lock()
	changed := p.last.Serving != st.Serving || p.last.CheckedAt.IsZero()
	p.last = st
	p.mu.Unlock()

	if st.Serving {
		p.srv.SetServingStatus(Service, healthpb.HealthCheckResponse_SERVING)
	} else {
		p.srv.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	if changed {
		log.Printf("backend serving=%v %s", st.Serving, st.Error)
	}
	return st
}

// Start checks right away, then on schedule.
func (p *Prober) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { p.Check(context.Background()) }); err != nil {
		return err
	}
	p.Check(context.Background())
	p.cron = c
	c.Start()
	return nil
}

// Stop waits for a running check to finish.
func (p *Prober) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}

func (p *Prober) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

func (p *Prober) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	st := p.Status()
	code := http.StatusOK
	if !st.Serving {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(st)
}
