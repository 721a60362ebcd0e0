package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dailyform/internal/config"
	"github.com/sells-group/dailyform/internal/form"
	"github.com/sells-group/dailyform/internal/recovery"
	"github.com/sells-group/dailyform/internal/render"
	"github.com/sells-group/dailyform/internal/resilience"
	"github.com/sells-group/dailyform/internal/source"
	"github.com/sells-group/dailyform/internal/store"
	"github.com/sells-group/dailyform/pkg/toodledo"
	"github.com/sells-group/dailyform/pkg/weather"
)

// formEnv holds the store, clients and resolvers shared by the run, demo and
// serve commands.
type formEnv struct {
	Config   *config.Config
	Store    store.FactStore
	Overlay  *recovery.Overlay
	Weather  weather.Client
	Todo     toodledo.Client
	Place    source.PlaceResolver
	User     source.UserResolver
	Guard    *resilience.Guard
	Template string
}

// Close releases resources held by the environment.
func (e *formEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens and migrates the store and builds every client. Callers
// should defer env.Close().
func initEnv(ctx context.Context, mode string) (*formEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := newEnv(cfg, st)
	if cfg.Directory.Path != "" {
		dir, err := source.LoadDirectory(cfg.Directory.Path)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		env.Place, env.User = dir, dir
	}
	if cfg.Form.Template != "" {
		b, err := os.ReadFile(cfg.Form.Template)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrapf(err, "read template %s", cfg.Form.Template)
		}
		env.Template = string(b)
	}

	if cfg.Weather.Key == "" {
		zap.L().Warn("weather api key is empty; weather will fall back to its default")
	}
	return env, nil
}

// newEnv wires clients from config around an already open store.
func newEnv(c *config.Config, st store.FactStore) *formEnv {
	return &formEnv{
		Config:  c,
		Store:   st,
		Overlay: recovery.New(st),
		Weather: weather.NewClient(c.Weather.Key,
			weather.WithBaseURL(c.Weather.BaseURL),
			weather.WithRateLimit(c.Weather.RateLimit),
		),
		Todo: toodledo.NewClient(toodledo.Credentials{
			AppID:    c.Toodledo.ID,
			AppToken: c.Toodledo.Token,
			Email:    c.Toodledo.Login(),
			Password: c.Toodledo.Password,
		},
			toodledo.WithBaseURL(c.Toodledo.BaseURL),
			toodledo.WithRateLimit(c.Toodledo.RateLimit),
		),
		Place: source.StaticPlace{Zip: c.Directory.Zip},
		User:  source.StaticUser{Name: c.Directory.User},
		Guard: resilience.FromConfig(
			c.Resilience.MaxAttempts,
			c.Resilience.InitialBackoffMs,
			c.Resilience.MaxBackoffMs,
			c.Resilience.FailureThreshold,
			c.Resilience.ResetTimeoutSecs,
		),
	}
}

// formRequest describes one form to build.
type formRequest struct {
	ID       string
	Date     time.Time
	Zip      string
	Failures []string
}

// newForm builds a form with the weather and to-do capabilities and the
// recovery overlay.
func (e *formEnv) newForm(req formRequest) (*form.Form, error) {
	opts := []form.Option{
		form.WithCapabilities(
			source.NewWeather(e.Weather, e.Place, e.Guard),
			source.NewTodo(e.Todo, e.User, e.Guard, source.WithAccountOwner(e.Config.Directory.User)),
		),
		form.WithSimulatedFailures(req.Failures...),
		form.WithRecovery(e.Overlay),
		form.WithFetchTimeout(time.Duration(e.Config.Form.FetchTimeoutSecs) * time.Second),
		form.WithConcurrentFetch(e.Config.Form.ConcurrentFetch),
	}
	f := form.New(e.Config.Form.Type, req.ID, req.Date, opts...)
	if req.Zip != "" {
		if err := f.SetFact(source.KeyZipCode, req.Zip); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// renderer picks the report renderer. An explicit template overrides the
// configured one.
func (e *formEnv) renderer(html bool) (form.Renderer, error) {
	switch {
	case html && e.Template != "":
		return render.NewHTML("report", e.Template)
	case html:
		return render.DailyHTML(), nil
	case e.Template != "":
		return render.NewText(e.Template)
	default:
		return render.Daily(), nil
	}
}
