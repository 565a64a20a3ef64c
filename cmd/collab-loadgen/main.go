package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/venue-ops/collab/internal/app/collabclient"
	"github.com/venue-ops/collab/internal/app/identity"
	"github.com/venue-ops/collab/internal/app/lifecycle"
	"github.com/venue-ops/collab/internal/collab"
	"github.com/venue-ops/collab/internal/platform/metrics"
)

type config struct {
	APIBase                 string        `env:"LOADGEN_API_BASE" envDefault:"http://collab-api:8080"`
	Pairs                   int           `env:"LOADGEN_PAIRS" envDefault:"50"`
	SetupConcurrency        int           `env:"LOADGEN_SETUP_CONCURRENCY" envDefault:"10"`
	StartupWait             time.Duration `env:"LOADGEN_STARTUP_WAIT" envDefault:"2m"`
	Duration                time.Duration `env:"LOADGEN_DURATION" envDefault:"10m"`
	RampUp                  time.Duration `env:"LOADGEN_RAMP_UP" envDefault:"30s"`
	ActionsPerPairPerSecond float64       `env:"LOADGEN_ACTIONS_PER_PAIR_PER_SECOND" envDefault:"0.5"`
	RequestTimeout          time.Duration `env:"LOADGEN_REQUEST_TIMEOUT" envDefault:"10s"`
	MetricsAddr             string        `env:"LOADGEN_METRICS_ADDR" envDefault:":9099"`
	Password                string        `env:"LOADGEN_PASSWORD" envDefault:"load-test-pass-123"`
	MilestonesPerInvitation int           `env:"LOADGEN_MILESTONES" envDefault:"4"`
}

// pair is one organizer negotiating with one artist over one invitation.
type pair struct {
	Index   int
	Club    *collabclient.Session
	Artist  *collabclient.Session
	EventID string
}

type runner struct {
	cfg    config
	runID  string
	client *http.Client

	actionsOK   atomic.Int64
	actionsFail atomic.Int64
	activePairs atomic.Int64
}

var actionsTotal = metrics.NewCounterVec(metrics.Opts{
	Name: "collab_loadgen_actions_total",
	Help: "Collaboration actions executed by the load generator.",
}, []string{"action", "outcome"})

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(err)
	}
	if cfg.Pairs <= 0 {
		log.Fatal("LOADGEN_PAIRS must be > 0")
	}
	if cfg.SetupConcurrency <= 0 {
		log.Fatal("LOADGEN_SETUP_CONCURRENCY must be > 0")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx := baseCtx
	if cfg.Duration > 0 {
		timeoutCtx, cancel := context.WithTimeout(baseCtx, cfg.Duration)
		defer cancel()
		ctx = timeoutCtx
	}

	r := &runner{
		cfg:    cfg,
		runID:  strconv.FormatInt(time.Now().UTC().UnixNano(), 10),
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.Pairs * 4,
				MaxIdleConnsPerHost: cfg.Pairs * 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	metrics.Default.MustRegister(actionsTotal, metrics.NewGaugeFunc(metrics.Opts{
		Name: "collab_loadgen_active_pairs",
		Help: "Organizer/artist pairs currently sending actions.",
	}, func() float64 { return float64(r.activePairs.Load()) }))
	go runMetricsServer(cfg.MetricsAddr)

	if err := r.waitForReady(ctx); err != nil {
		log.Fatalf("collab-api not ready: %v", err)
	}

	pairs := r.setupPairs(ctx)
	if len(pairs) == 0 {
		log.Fatal("failed to initialize any pairs")
	}
	log.Printf("load generator initialized: pairs=%d duration=%s rate_per_pair=%.2f actions/s",
		len(pairs), cfg.Duration.String(), cfg.ActionsPerPairPerSecond)

	var wg sync.WaitGroup
	for _, p := range pairs {
		wg.Add(1)
		go func(p *pair) {
			defer wg.Done()
			r.runPair(ctx, p)
		}(p)
	}

	<-ctx.Done()
	wg.Wait()

	log.Printf("load test complete: ok_actions=%d failed_actions=%d", r.actionsOK.Load(), r.actionsFail.Load())
}

func (r *runner) waitForReady(ctx context.Context) error {
	deadline := time.Now().Add(r.cfg.StartupWait)
	var lastErr error
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.APIBase+"/readyz", nil)
		if err != nil {
			return err
		}
		resp, err := r.client.Do(req)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			err = fmt.Errorf("status=%d", resp.StatusCode)
		}
		lastErr = err
		time.Sleep(1200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout")
	}
	return lastErr
}

func (r *runner) setupPairs(ctx context.Context) []*pair {
	sem := make(chan struct{}, r.cfg.SetupConcurrency)
	var (
		mu    sync.Mutex
		pairs []*pair
		wg    sync.WaitGroup
	)
	for i := 0; i < r.cfg.Pairs; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			p, err := r.setupPair(ctx, idx)
			if err != nil {
				log.Printf("pair %d setup failed: %v", idx, err)
				return
			}
			mu.Lock()
			pairs = append(pairs, p)
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	log.Printf("pair setup complete: success=%d failed=%d", len(pairs), r.cfg.Pairs-len(pairs))
	return pairs
}

func (r *runner) setupPair(ctx context.Context, idx int) (*pair, error) {
	club := collabclient.New(r.cfg.APIBase, r.client)
	clubAuth, err := r.signUp(ctx, club, identity.Registration{
		Username: fmt.Sprintf("club-%s-%04d", r.runID, idx),
		Password: r.cfg.Password,
		Kind:     identity.KindOrganizer,
	})
	if err != nil {
		return nil, err
	}

	artist := collabclient.New(r.cfg.APIBase, r.client)
	artistAuth, err := r.signUp(ctx, artist, identity.Registration{
		Username:  fmt.Sprintf("artist-%s-%04d", r.runID, idx),
		Password:  r.cfg.Password,
		Kind:      identity.KindArtist,
		StageName: fmt.Sprintf("Load Artist %d", idx),
	})
	if err != nil {
		return nil, err
	}

	// Events start shortly after the run so the sweeper gets to auto-complete.
	evt, err := club.ScheduleEvent(ctx, fmt.Sprintf("Load Night %d", idx), time.Now().UTC().Add(r.cfg.Duration/2))
	if err != nil {
		return nil, fmt.Errorf("schedule event: %w", err)
	}
	res, err := club.CreateInvitation(ctx, lifecycle.InvitationFields{
		EventID:           evt.ID,
		UserID:            artistAuth.UserID,
		Genre:             "techno",
		ExpectedAttendees: 200 + idx,
	})
	if err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}
	invitationID := res.Invitation.ID

	assignees := []collab.Assignee{collab.AssigneeArtist, collab.AssigneeClub, collab.AssigneeBoth}
	for i := 0; i < r.cfg.MilestonesPerInvitation; i++ {
		if _, err := club.CreateMilestone(ctx, invitationID, lifecycle.MilestoneFields{
			Title:      fmt.Sprintf("Milestone %d", i+1),
			AssignedTo: assignees[i%len(assignees)],
		}); err != nil {
			return nil, fmt.Errorf("create milestone: %w", err)
		}
	}

	clubSession, err := collabclient.Open(ctx, club, invitationID, clubAuth.UserID)
	if err != nil {
		return nil, fmt.Errorf("open club session: %w", err)
	}
	artistSession, err := collabclient.Open(ctx, artist, invitationID, artistAuth.UserID)
	if err != nil {
		return nil, fmt.Errorf("open artist session: %w", err)
	}
	return &pair{Index: idx, Club: clubSession, Artist: artistSession, EventID: evt.ID}, nil
}

func (r *runner) signUp(ctx context.Context, c *collabclient.Client, reg identity.Registration) (identity.AuthResponse, error) {
	auth, err := c.Register(ctx, reg)
	if collabclient.IsStatusCode(err, http.StatusConflict) {
		auth, err = c.Login(ctx, reg.Username, reg.Password)
	}
	if err != nil {
		return identity.AuthResponse{}, fmt.Errorf("sign up %s: %w", reg.Username, err)
	}
	return auth, nil
}

func (r *runner) runPair(ctx context.Context, p *pair) {
	if r.cfg.RampUp > 0 {
		delay := time.Duration(float64(r.cfg.RampUp) / float64(r.cfg.Pairs) * float64(p.Index))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
	r.activePairs.Add(1)
	defer r.activePairs.Add(-1)

	interval := time.Second
	if r.cfg.ActionsPerPairPerSecond > 0 {
		interval = time.Duration(float64(time.Second) / r.cfg.ActionsPerPairPerSecond)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(p.Index)))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.Club.Snapshot().Invitation.Status.Terminal() {
				return
			}
			r.runAction(ctx, p, rng)
		}
	}
}

func (r *runner) runAction(ctx context.Context, p *pair, rng *rand.Rand) {
	var action string
	var err error
	switch roll := rng.Intn(10); {
	case roll < 5:
		action = "complete_milestone"
		err = completeNext(ctx, p, rng)
	case roll < 7:
		action = "post_message"
		session := p.Artist
		if rng.Intn(2) == 0 {
			session = p.Club
		}
		err = session.PostMessage(ctx, fmt.Sprintf("update %d", rng.Intn(1000)))
	case roll < 9:
		action = "change_status"
		err = advanceStatus(ctx, p.Club, rng)
	default:
		action = "refresh"
		_, err = p.Club.Client.Refresh(ctx, p.Club.Snapshot().Invitation.ID)
	}
	r.record(action, err)
}

// completeNext completes the current milestone from a side allowed to.
func completeNext(ctx context.Context, p *pair, rng *rand.Rand) error {
	current := p.Club.Snapshot().Progress.Current
	if current == nil {
		return nil
	}
	session := p.Club
	switch current.AssignedTo {
	case collab.AssigneeArtist:
		session = p.Artist
	case collab.AssigneeBoth:
		if rng.Intn(2) == 0 {
			session = p.Artist
		}
	}
	if err := session.SetMilestoneStatus(ctx, current.ID, collab.MilestoneCompleted); err != nil {
		return err
	}
	return p.Club.Reconcile(ctx)
}

// advanceStatus picks a non-terminal legal status when one exists, so the
// negotiation keeps going until the event completes it.
func advanceStatus(ctx context.Context, s *collabclient.Session, rng *rand.Rand) error {
	var options []collab.Status
	for _, st := range s.Snapshot().LegalTransitions {
		if !st.Terminal() {
			options = append(options, st)
		}
	}
	if len(options) == 0 {
		return nil
	}
	return s.ChangeStatus(ctx, options[rng.Intn(len(options))])
}

func (r *runner) record(action string, err error) {
	if err != nil {
		r.actionsFail.Add(1)
		actionsTotal.WithLabelValues(action, "error").Inc()
		log.Printf("%s failed: %v", action, err)
		return
	}
	r.actionsOK.Add(1)
	actionsTotal.WithLabelValues(action, "ok").Inc()
}

func runMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.DefaultHandler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("load generator metrics listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("metrics server failed: %v", err)
	}
}
