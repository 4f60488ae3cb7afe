package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/prometheus/client_golang/prometheus"

	dserrors "github.com/systmms/kvemu/internal/errors"
	"github.com/systmms/kvemu/internal/logging"
	"github.com/systmms/kvemu/pkg/keyvault"
)

// DefaultStart is the scenario clock's starting instant.
var DefaultStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Options configures a run.
type Options struct {
	Logger     *logging.Logger
	Registerer prometheus.Registerer
	// Start overrides DefaultStart.
	Start time.Time
}

// StepResult is the outcome of one step.
type StepResult struct {
	Index   int    `json:"index"`
	Op      string `json:"op"`
	Name    string `json:"name,omitempty"`
	Passed  bool   `json:"passed"`
	Detail  string `json:"detail,omitempty"`
	Failure string `json:"failure,omitempty"`
}

// Report summarizes a run.
type Report struct {
	Scenario string       `json:"scenario"`
	Seeded   []string     `json:"seeded,omitempty"`
	Steps    []StepResult `json:"steps"`
}

// Failed returns the number of failed steps.
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Steps {
		if !s.Passed {
			n++
		}
	}
	return n
}

// Err returns a StepError for the first failed step, or nil.
func (r *Report) Err() error {
	for _, s := range r.Steps {
		if !s.Passed {
			return dserrors.StepError{File: r.Scenario, Step: s.Index, Operation: s.Op, Message: s.Failure}
		}
	}
	return nil
}

// WriteText prints one line per step followed by a summary.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario %s\n", r.Scenario)
	if len(r.Seeded) > 0 {
		fmt.Fprintf(&b, "  seeded %d secret(s)\n", len(r.Seeded))
	}
	for _, s := range r.Steps {
		mark := "✓"
		if !s.Passed {
			mark = "✗"
		}
		line := fmt.Sprintf("  %s %2d %-13s %s", mark, s.Index, s.Op, s.Name)
		if s.Detail != "" {
			line += "  " + s.Detail
		}
		if !s.Passed {
			line += "\n      " + s.Failure
		}
		b.WriteString(strings.TrimRight(line, " ") + "\n")
	}
	fmt.Fprintf(&b, "%d passed, %d failed\n", len(r.Steps)-r.Failed(), r.Failed())
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON prints the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

type runner struct {
	client *keyvault.Client
	now    time.Time
	// versions lists the ids written to each name's current timeline, so "#n"
	// never resolves into a history that a purge or re-creation discarded.
	versions map[string][]string
	deleted  map[string]bool
	logger   *logging.Logger
}

// observed is what a step produced, normalized across operations.
type observed struct {
	value       *string
	contentType *string
	tags        map[string]*string
	enabled     *bool
	names       []string
	detail      string
}

// Run executes sc against a fresh emulated vault. Step failures are recorded
// in the report; the returned error covers setup problems and cancellation.
func Run(ctx context.Context, sc *Scenario, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	r := &runner{
		now:      opts.Start,
		versions: make(map[string][]string),
		deleted:  make(map[string]bool),
		logger:   logger,
	}
	if r.now.IsZero() {
		r.now = DefaultStart
	}

	client, err := keyvault.NewClientWithoutCredential(sc.VaultURL, &keyvault.ClientOptions{
		Logger:          logger,
		RecoverableDays: int32(sc.RecoverableDays),
		Registerer:      opts.Registerer,
		Clock:           func() time.Time { return r.now },
	})
	if err != nil {
		return nil, err
	}
	r.client = client

	report := &Report{Scenario: sc.Name}
	if sc.Seed != "" {
		path := sc.Seed
		if !filepath.IsAbs(path) {
			path = filepath.Join(sc.Dir, path)
		}
		seeded, err := Seed(ctx, client, path)
		if err != nil {
			return nil, err
		}
		report.Seeded = seeded
		logger.Debug("Seeded %d secret(s) from %s", len(seeded), path)
	}

	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := StepResult{Index: i + 1, Op: step.Op, Name: step.Name}
		obs, err := r.exec(ctx, step)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return report, err
		}
		res.Detail = obs.detail
		if failure := check(step.Expect, obs, err); failure != "" {
			res.Failure = failure
		} else {
			res.Passed = true
		}
		logger.Debug("Step %d %s %s passed=%t", res.Index, step.Op, step.Name, res.Passed)
		report.Steps = append(report.Steps, res)
	}
	return report, nil
}

func (r *runner) exec(ctx context.Context, step Step) (observed, error) {
	c := r.client
	switch step.Op {
	case OpSet:
		params := azsecrets.SetSecretParameters{
			Value:       step.Value,
			ContentType: step.ContentType,
			Tags:        toTags(step.Tags),
		}
		if step.Enabled != nil {
			params.SecretAttributes = &azsecrets.SecretAttributes{Enabled: step.Enabled}
		}
		resp, err := c.SetSecret(ctx, step.Name, params, nil)
		if err != nil {
			return observed{}, err
		}
		if r.deleted[step.Name] {
			r.forget(step.Name)
		}
		version := resp.ID.Version()
		r.versions[step.Name] = append(r.versions[step.Name], version)
		obs := fromSecret(resp.Secret)
		obs.detail = "version #" + strconv.Itoa(len(r.versions[step.Name]))
		return obs, nil

	case OpGet:
		version, err := r.resolveVersion(step)
		if err != nil {
			return observed{}, err
		}
		resp, err := c.GetSecret(ctx, step.Name, version, nil)
		if err != nil {
			return observed{}, err
		}
		return fromSecret(resp.Secret), nil

	case OpDelete:
		resp, err := c.DeleteSecret(ctx, step.Name, nil)
		if err != nil {
			return observed{}, err
		}
		r.deleted[step.Name] = true
		obs := fromDeleted(resp.DeletedSecret)
		if resp.ScheduledPurgeDate != nil {
			obs.detail = "purge scheduled " + resp.ScheduledPurgeDate.Format(time.RFC3339)
		}
		return obs, nil

	case OpGetDeleted:
		resp, err := c.GetDeletedSecret(ctx, step.Name, nil)
		if err != nil {
			return observed{}, err
		}
		return fromDeleted(resp.DeletedSecret), nil

	case OpPurge:
		if _, err := c.PurgeDeletedSecret(ctx, step.Name, nil); err != nil {
			return observed{}, err
		}
		r.forget(step.Name)
		return observed{}, nil

	case OpRecover:
		resp, err := c.RecoverDeletedSecret(ctx, step.Name, nil)
		if err != nil {
			return observed{}, err
		}
		delete(r.deleted, step.Name)
		return fromSecret(resp.Secret), nil

	case OpUpdate:
		version, err := r.resolveVersion(step)
		if err != nil {
			return observed{}, err
		}
		params := azsecrets.UpdateSecretPropertiesParameters{
			ContentType: step.ContentType,
			Tags:        toTags(step.Tags),
		}
		if step.Enabled != nil {
			params.SecretAttributes = &azsecrets.SecretAttributes{Enabled: step.Enabled}
		}
		resp, err := c.UpdateSecretProperties(ctx, step.Name, version, params, nil)
		if err != nil {
			return observed{}, err
		}
		return fromSecret(resp.Secret), nil

	case OpList:
		names, err := collect(ctx, c.NewListSecretPropertiesPager(nil), func(p azsecrets.ListSecretPropertiesResponse) []*azsecrets.ID {
			ids := make([]*azsecrets.ID, 0, len(p.Value))
			for _, v := range p.Value {
				ids = append(ids, v.ID)
			}
			return ids
		}, (*azsecrets.ID).Name)
		return listed(names), err

	case OpListDeleted:
		names, err := collect(ctx, c.NewListDeletedSecretPropertiesPager(nil), func(p azsecrets.ListDeletedSecretPropertiesResponse) []*azsecrets.ID {
			ids := make([]*azsecrets.ID, 0, len(p.Value))
			for _, v := range p.Value {
				ids = append(ids, v.ID)
			}
			return ids
		}, (*azsecrets.ID).Name)
		return listed(names), err

	case OpListVersions:
		versions, err := collect(ctx, c.NewListSecretPropertiesVersionsPager(step.Name, nil), func(p azsecrets.ListSecretPropertiesVersionsResponse) []*azsecrets.ID {
			ids := make([]*azsecrets.ID, 0, len(p.Value))
			for _, v := range p.Value {
				ids = append(ids, v.ID)
			}
			return ids
		}, (*azsecrets.ID).Version)
		return listed(versions), err

	case OpPurgeExpired:
		purged, err := c.PurgeExpired(ctx)
		for _, name := range purged {
			r.forget(name)
		}
		return listed(purged), err

	case OpAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil || d < 0 {
			return observed{}, fmt.Errorf("invalid duration %q", step.Duration)
		}
		r.now = r.now.Add(d)
		return observed{detail: "clock at " + r.now.Format(time.RFC3339)}, nil
	}
	return observed{}, fmt.Errorf("unknown operation %q", step.Op)
}

func (r *runner) forget(name string) {
	delete(r.versions, name)
	delete(r.deleted, name)
}

// resolveVersion turns "#n" into the n-th version written for the step's name.
func (r *runner) resolveVersion(step Step) (string, error) {
	if !strings.HasPrefix(step.Version, "#") {
		return step.Version, nil
	}
	n, err := strconv.Atoi(step.Version[1:])
	known := r.versions[step.Name]
	if err != nil || n < 1 || n > len(known) {
		return "", fmt.Errorf("version reference %s does not match a version written for %s", step.Version, step.Name)
	}
	return known[n-1], nil
}

func collect[P any](ctx context.Context, pager *runtime.Pager[P], ids func(P) []*azsecrets.ID, part func(*azsecrets.ID) string) ([]string, error) {
	var out []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range ids(page) {
			out = append(out, part(id))
		}
	}
	return out, nil
}

func listed(names []string) observed {
	return observed{names: names, detail: fmt.Sprintf("%d item(s)", len(names))}
}

func fromSecret(s azsecrets.Secret) observed {
	obs := observed{value: s.Value, contentType: s.ContentType, tags: s.Tags}
	if s.Attributes != nil {
		obs.enabled = s.Attributes.Enabled
	}
	return obs
}

func fromDeleted(s azsecrets.DeletedSecret) observed {
	obs := observed{value: s.Value, contentType: s.ContentType, tags: s.Tags}
	if s.Attributes != nil {
		obs.enabled = s.Attributes.Enabled
	}
	return obs
}

func toTags(tags map[string]string) map[string]*string {
	if tags == nil {
		return nil
	}
	out := make(map[string]*string, len(tags))
	for k, v := range tags {
		out[k] = to.Ptr(v)
	}
	return out
}

// check compares a step's result with its expectation and returns a failure
// description, or "" when the step passed.
func check(exp *Expectation, obs observed, err error) string {
	if exp == nil {
		exp = &Expectation{}
	}

	if exp.Error != "" || exp.Message != "" {
		if err == nil {
			return fmt.Sprintf("expected error %s, operation succeeded", firstNonEmpty(exp.Error, strconv.Quote(exp.Message)))
		}
		if exp.Error != "" {
			var re *keyvault.ResponseError
			if !errors.As(err, &re) {
				return fmt.Sprintf("expected error %s, got %v", exp.Error, err)
			}
			if re.ErrorCode != exp.Error {
				return fmt.Sprintf("expected error %s, got %s", exp.Error, re.ErrorCode)
			}
		}
		if exp.Message != "" && err.Error() != exp.Message {
			return fmt.Sprintf("expected message %q, got %q", exp.Message, err.Error())
		}
		return ""
	}
	if err != nil {
		return "unexpected error: " + err.Error()
	}

	if exp.Value != nil && deref(obs.value) != *exp.Value {
		return fmt.Sprintf("expected value %q, got %q", *exp.Value, deref(obs.value))
	}
	if exp.ContentType != nil && deref(obs.contentType) != *exp.ContentType {
		return fmt.Sprintf("expected content type %q, got %q", *exp.ContentType, deref(obs.contentType))
	}
	if exp.Tags != nil {
		got := make(map[string]string, len(obs.tags))
		for k, v := range obs.tags {
			got[k] = deref(v)
		}
		if !maps.Equal(got, exp.Tags) {
			return fmt.Sprintf("expected tags %v, got %v", exp.Tags, got)
		}
	}
	if exp.Enabled != nil && (obs.enabled == nil || *obs.enabled != *exp.Enabled) {
		return fmt.Sprintf("expected enabled=%t", *exp.Enabled)
	}
	if exp.Count != nil && len(obs.names) != *exp.Count {
		return fmt.Sprintf("expected %d item(s), got %d", *exp.Count, len(obs.names))
	}
	if exp.Names != nil && !slices.Equal(obs.names, exp.Names) {
		return fmt.Sprintf("expected %v, got %v", exp.Names, obs.names)
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
