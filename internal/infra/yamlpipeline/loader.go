package yamlpipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cigrirepo/Floww/internal/domain"
	"github.com/cigrirepo/Floww/internal/ports"
	"gopkg.in/yaml.v3"
)

type Loader struct {
	pipelinesDir string
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{pipelinesDir: "pipelines"}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type Option func(*Loader)

func WithPipelinesDir(dir string) Option {
	return func(l *Loader) { l.pipelinesDir = dir }
}

var _ ports.PipelineLoader = (*Loader)(nil)

func (l *Loader) LoadPipeline(path string) (domain.Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.Pipeline{}, &domain.OpError{
			Op:   "yamlpipeline.load",
			Kind: domain.KindNotFound,
			Path: path,
			Err:  err,
		}
	}

	var yp yamlPipeline
	if err := yaml.Unmarshal(b, &yp); err != nil {
		return domain.Pipeline{}, &domain.OpError{
			Op:   "yamlpipeline.load",
			Kind: domain.KindInvalidConfig,
			Path: path,
			Err:  err,
		}
	}

	pipe, err := mapAndValidate(path, yp)
	if err != nil {
		return domain.Pipeline{}, err
	}

	return pipe, nil
}

func (l *Loader) ListPipelines(root string) ([]domain.PipelineRef, error) {
	dir := filepath.Join(root, l.pipelinesDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &domain.OpError{
			Op:   "yamlpipeline.list",
			Kind: domain.KindNotFound,
			Path: dir,
			Err:  err,
		}
	}

	var refs []domain.PipelineRef
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		p := filepath.Join(dir, name)
		n, _ := readPipelineName(p)
		if strings.TrimSpace(n) == "" {
			n = strings.TrimSuffix(name, filepath.Ext(name))
		}

		refs = append(refs, domain.PipelineRef{Name: n, Path: p})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func readPipelineName(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var v struct {
		Name string `yaml:"name"`
	}
	if err := yaml.Unmarshal(b, &v); err != nil {
		return "", err
	}
	return v.Name, nil
}

type yamlPipeline struct {
	Name  string            `yaml:"name"`
	Vars  map[string]string `yaml:"vars"`
	Steps []yamlStep        `yaml:"steps"`
}

type yamlStep struct {
	Name      string            `yaml:"name"`
	Run       []string          `yaml:"run"`
	Dir       string            `yaml:"dir"`
	Env       map[string]string `yaml:"env"`
	TimeoutMS *int              `yaml:"timeout_ms"`

	Smoke *yamlSmoke `yaml:"smoke"`
}

type yamlSmoke struct {
	App  []string `yaml:"app"`
	Port int      `yaml:"port"`
	Path string   `yaml:"path"`

	Ready       yamlReady  `yaml:"ready"`
	Assert      yamlAssert `yaml:"assert"`
	StopGraceMS int        `yaml:"stop_grace_ms"`
}

type yamlReady struct {
	Strategy   string `yaml:"strategy"`
	DelayMS    int    `yaml:"delay_ms"`
	IntervalMS int    `yaml:"interval_ms"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type yamlAssert struct {
	Status *int `yaml:"status"`
	MaxMS  *int `yaml:"max_ms"`

	JSONPath map[string]yamlJSONPathAssertion `yaml:"jsonpath"`
}

type yamlJSONPathAssertion struct {
	Exists   bool    `yaml:"exists"`
	Eq       *string `yaml:"eq"`
	Contains *string `yaml:"contains"`
}

func mapAndValidate(path string, yp yamlPipeline) (domain.Pipeline, error) {
	if strings.TrimSpace(yp.Name) == "" {
		return domain.Pipeline{}, invalidField(path, "name", "pipeline name is required")
	}
	if len(yp.Steps) == 0 {
		return domain.Pipeline{}, invalidField(path, "steps", "at least one step is required")
	}

	pipe := domain.Pipeline{
		Name:  yp.Name,
		Vars:  domain.Vars(yp.Vars),
		Steps: make([]domain.StepSpec, 0, len(yp.Steps)),
	}

	for i, s := range yp.Steps {
		fieldPrefix := fmt.Sprintf("steps[%d]", i)

		if strings.TrimSpace(s.Name) == "" {
			return domain.Pipeline{}, invalidField(path, fieldPrefix+".name", "step name is required")
		}

		hasRun := len(s.Run) > 0
		hasSmoke := s.Smoke != nil
		if hasRun == hasSmoke {
			return domain.Pipeline{}, invalidField(path, fieldPrefix, "exactly one of run or smoke is required")
		}

		step := domain.StepSpec{
			Name:      s.Name,
			Dir:       s.Dir,
			Env:       domain.Vars(s.Env),
			TimeoutMS: s.TimeoutMS,
		}
		if step.Env == nil {
			step.Env = domain.Vars{}
		}

		if hasRun {
			step.Kind = domain.StepRun
			step.Command = s.Run
		} else {
			step.Kind = domain.StepSmoke

			smoke, err := mapSmoke(path, fieldPrefix+".smoke", *s.Smoke)
			if err != nil {
				return domain.Pipeline{}, err
			}
			step.Smoke = &smoke
		}

		pipe.Steps = append(pipe.Steps, step)
	}

	return pipe, nil
}

func mapSmoke(path, field string, ys yamlSmoke) (domain.SmokeSpec, error) {
	if len(ys.App) == 0 {
		return domain.SmokeSpec{}, invalidField(path, field+".app", "app argv is required")
	}
	if ys.Port <= 0 || ys.Port > 65535 {
		return domain.SmokeSpec{}, invalidField(path, field+".port", fmt.Sprintf("invalid port %d", ys.Port))
	}

	probePath := ys.Path
	if strings.TrimSpace(probePath) == "" {
		probePath = "/"
	}
	if !strings.HasPrefix(probePath, "/") && !strings.Contains(probePath, "{{") {
		return domain.SmokeSpec{}, invalidField(path, field+".path", "path must start with /")
	}

	ready, err := mapReady(path, field+".ready", ys.Ready)
	if err != nil {
		return domain.SmokeSpec{}, err
	}

	return domain.SmokeSpec{
		App:   ys.App,
		Port:  ys.Port,
		Path:  probePath,
		Ready: ready,
		Assert: domain.ProbeAssertSpec{
			Status:       ys.Assert.Status,
			MaxLatencyMS: ys.Assert.MaxMS,
			JSONPath:     mapJSONPath(ys.Assert.JSONPath),
		},
		StopGraceMS: ys.StopGraceMS,
	}, nil
}

func mapReady(path, field string, yr yamlReady) (domain.ReadinessSpec, error) {
	strategy := domain.ReadinessStrategy(strings.ToLower(strings.TrimSpace(yr.Strategy)))
	switch strategy {
	case "":
		strategy = domain.ReadyDelay
	case domain.ReadyDelay, domain.ReadyPoll:
	default:
		return domain.ReadinessSpec{}, invalidField(path, field+".strategy",
			fmt.Sprintf("unsupported strategy %q (expected delay|poll)", yr.Strategy))
	}

	out := domain.ReadinessSpec{
		Strategy:   strategy,
		DelayMS:    yr.DelayMS,
		IntervalMS: yr.IntervalMS,
		TimeoutMS:  yr.TimeoutMS,
	}

	if strategy == domain.ReadyDelay && out.DelayMS == 0 {
		out.DelayMS = domain.DefaultReadyDelayMS
	}
	if strategy == domain.ReadyPoll {
		if out.IntervalMS == 0 {
			out.IntervalMS = domain.DefaultPollIntervalMS
		}
		if out.TimeoutMS == 0 {
			out.TimeoutMS = domain.DefaultPollTimeoutMS
		}
	}

	if out.DelayMS < 0 || out.IntervalMS < 0 || out.TimeoutMS < 0 {
		return domain.ReadinessSpec{}, invalidField(path, field, "durations must not be negative")
	}

	return out, nil
}

func mapJSONPath(in map[string]yamlJSONPathAssertion) map[string]domain.JSONPathAssertion {
	if in == nil {
		return map[string]domain.JSONPathAssertion{}
	}
	out := make(map[string]domain.JSONPathAssertion, len(in))
	for k, v := range in {
		out[k] = domain.JSONPathAssertion{
			Exists:   v.Exists,
			Eq:       v.Eq,
			Contains: v.Contains,
		}
	}
	return out
}

func invalidField(path, field, msg string) error {
	return &domain.OpError{
		Op:   "yamlpipeline.validate",
		Kind: domain.KindInvalidConfig,
		Path: path,
		Err:  fmt.Errorf("field %s: %s", field, msg),
	}
}
