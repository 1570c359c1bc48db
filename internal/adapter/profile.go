package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/foundry-bot/partner-research/internal/config"
	"github.com/foundry-bot/partner-research/internal/model"
	"github.com/foundry-bot/partner-research/internal/pool"
	"github.com/foundry-bot/partner-research/internal/session"
)

// profileOutput is the JSON contract of the scraper script's stdout.
type profileOutput struct {
	Success   bool             `json:"success"`
	Data      map[string]any   `json:"data"`
	Error     string           `json:"error"`
	ErrorType string           `json:"error_type"`
	Cookies   []map[string]any `json:"cookies"`
}

// ProfileAdapter scrapes the subject's canonical profile page through a
// browser-automation child process. It borrows an identity from the pool,
// reuses its saved session when one exists, and reports the outcome back
// so the pool can apply its escalation policy.
type ProfileAdapter struct {
	cfg      config.ProfileConfig
	pool     *pool.Pool
	sessions *session.Manager
}

// NewProfileAdapter creates a ProfileAdapter.
func NewProfileAdapter(cfg config.ProfileConfig, p *pool.Pool, sessions *session.Manager) *ProfileAdapter {
	return &ProfileAdapter{cfg: cfg, pool: p, sessions: sessions}
}

func (a *ProfileAdapter) Name() string {
	return model.SourceProfile
}

func (a *ProfileAdapter) Research(ctx context.Context, subject model.Subject) Result {
	if subject.ProfileURL == "" {
		return Failure(a.Name(), "", model.KindInvalidInput, "no profile url for subject")
	}

	identity, err := a.pool.SelectAvailable(ctx)
	if err != nil {
		var exhausted *pool.NoneAvailableError
		if errors.As(err, &exhausted) {
			return Failure(a.Name(), subject.ProfileURL, model.KindNoneAvailable, exhausted.Error())
		}
		return Failure(a.Name(), subject.ProfileURL, model.KindProcessError, err.Error())
	}

	log := zap.L().With(
		zap.String("source", a.Name()),
		zap.String("identity_id", identity.ID),
		zap.String("url", subject.ProfileURL),
	)

	out, kind, err := a.runScraper(ctx, identity, subject.ProfileURL)
	if err != nil {
		log.Warn("profile: scrape failed", zap.String("kind", string(kind)), zap.Error(err))
		if recordErr := a.pool.RecordFailure(ctx, identity.ID, err.Error(), kind); recordErr != nil {
			log.Warn("profile: failed to record failure", zap.Error(recordErr))
		}
		return Failure(a.Name(), subject.ProfileURL, kind, err.Error())
	}

	if recordErr := a.pool.RecordSuccess(ctx, identity.ID); recordErr != nil {
		log.Warn("profile: failed to record success", zap.Error(recordErr))
	}

	// Persist refreshed session material for the next run.
	if len(out.Cookies) > 0 {
		if saveErr := a.sessions.Save(ctx, identity.ID, out.Cookies); saveErr != nil {
			log.Warn("profile: failed to save session", zap.Error(saveErr))
		}
	}

	log.Info("profile: scrape complete", zap.Int("fields", len(out.Data)))
	return Result{
		Success: true,
		Source:  a.Name(),
		Query:   subject.ProfileURL,
		Data:    out.Data,
	}
}

// runScraper executes the child process and decodes its stdout. The
// process is killed (not abandoned) when the timeout elapses.
func (a *ProfileAdapter) runScraper(ctx context.Context, identity *model.Identity, profileURL string) (*profileOutput, model.ErrorKind, error) {
	email, password, err := a.pool.Credentials(identity)
	if err != nil {
		return nil, model.KindProcessError, err
	}

	timeout := time.Duration(a.cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 150 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{a.cfg.ScriptPath, profileURL, "--email", email, "--password", password}

	// Reuse the saved session when one is still valid; the script falls
	// back to a credential login on its own when the cookies are stale.
	if cookies := a.sessions.Load(ctx, identity.ID); cookies != nil {
		cookieFile, err := writeCookieFile(cookies)
		if err != nil {
			zap.L().Warn("profile: failed to stage cookies", zap.Error(err))
		} else {
			defer os.Remove(cookieFile)
			args = append(args, "--cookies-file", cookieFile)
		}
	}

	cmd := exec.CommandContext(runCtx, a.cfg.Python, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, model.KindTimeout, errors.New("profile: scraper timed out")
	}

	// The script reports structured failures as JSON with exit code 0 or
	// 1; decode stdout before judging the exit code.
	var out profileOutput
	if decodeErr := json.Unmarshal(stdout.Bytes(), &out); decodeErr != nil {
		if runErr != nil {
			zap.L().Debug("profile: scraper stderr", zap.String("stderr", truncateStr(stderr.String(), 1000)))
			return nil, model.KindProcessError, errors.New("profile: scraper exited: " + runErr.Error())
		}
		// Retain raw output for diagnosis; it is not parseable.
		zap.L().Warn("profile: unparseable scraper output",
			zap.String("stdout", truncateStr(stdout.String(), 1000)))
		return nil, model.KindParseError, errors.New("profile: unparseable scraper output")
	}

	if !out.Success {
		return nil, classifyScraperError(out.ErrorType, out.Error), errors.New(out.Error)
	}
	return &out, "", nil
}

// classifyScraperError maps the script's error_type vocabulary onto the
// escalation taxonomy.
func classifyScraperError(errorType, message string) model.ErrorKind {
	switch strings.ToUpper(errorType) {
	case "AUTH_FAILED", "LOGIN_FAILED":
		return model.KindAuthFailed
	case "SECURITY_CHECKPOINT", "CAPTCHA",
		"VERIFICATION_REQUIRED", "VERIFICATION_FAILED",
		"VERIFICATION_ERROR", "NO_VERIFICATION_CODE":
		return model.KindSecurityCheckpoint
	case "RATE_LIMITED":
		return model.KindRateLimited
	case "TIMEOUT":
		return model.KindTimeout
	}

	// Older script versions only set the message.
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "checkpoint") || strings.Contains(msg, "captcha") ||
		strings.Contains(msg, "verification"):
		return model.KindSecurityCheckpoint
	case strings.Contains(msg, "rate") && strings.Contains(msg, "limit"):
		return model.KindRateLimited
	}
	return model.KindProcessError
}

func writeCookieFile(cookies []session.Cookie) (string, error) {
	data, err := json.Marshal(cookies)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "research-cookies-*.json")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
