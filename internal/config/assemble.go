package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-set/v2"

	"qma/internal/aggregate"
	"qma/internal/diag"
	"qma/internal/pipeline"
	"qma/pkg/contract"
	"qma/pkg/registry"
)

func invalid(format string, args ...any) error {
	return errors.Wrapf(contract.ErrConfigInvalid, "config: "+format, args...)
}

// Validate 静态校验；返回的错误均标记为 contract.ErrConfigInvalid。
func Validate(cfg Config) error {
	d := Defaults()
	if name := effName(cfg.OutputFormat, d.OutputFormat); registry.Renderer[name] == nil {
		return invalid("output_format %q not one of %v", name, registry.Names(registry.Renderer))
	}
	dash := false
	for _, in := range cfg.Inputs {
		switch strings.TrimSpace(in) {
		case "":
			return invalid("input path cannot be empty")
		case "-":
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return invalid("'-' cannot be mixed with other inputs")
	}
	if cfg.Concurrency < 1 {
		return invalid("concurrency must be >= 1")
	}
	if !diag.ValidLevel(cfg.Logging.Level) {
		return invalid("logging.level %q not one of debug|info|warn|error", cfg.Logging.Level)
	}

	if strings.TrimSpace(cfg.Index.Name) == "" {
		return invalid("index.name is empty")
	}
	if err := checkAccessor("index.accessor", cfg.Index.Accessor); err != nil {
		return err
	}
	if len(cfg.Fields) == 0 {
		return invalid("fields is empty")
	}
	names := set.New[string](len(cfg.Fields))
	for i, f := range cfg.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return invalid("fields[%d].name is empty", i)
		}
		if f.Name == cfg.Index.Name {
			return invalid("fields[%d].name %q collides with index.name", i, f.Name)
		}
		if !names.Insert(f.Name) {
			return invalid("fields[%d].name %q is duplicated", i, f.Name)
		}
		if err := checkAccessor(f.Name+".accessor", f.Accessor); err != nil {
			return err
		}
		if contract.ParseKind(f.Dtype) == contract.KindNone {
			return invalid("fields[%d].dtype %q not one of string|integer|float|second", i, f.Dtype)
		}
		if registry.Operation[f.Operation] == nil {
			return invalid("fields[%d].operation %q not one of %v", i, f.Operation, registry.Names(registry.Operation))
		}
	}
	if ob := aggregate.ParseOrderBy(cfg.OrderBy); ob.Field != "" && !names.Contains(ob.Field) {
		return invalid("order_by %q does not name a field", cfg.OrderBy)
	}

	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Reader[name] == nil {
		return invalid("reader %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Writer[name] == nil {
		return invalid("writer %q not registered", name)
	}
	return nil
}

// checkAccessor 点分路径不得含空段（"a..b"、".a"）；整体为空表示根。
func checkAccessor(what, dotted string) error {
	if dotted == "" {
		return nil
	}
	for _, seg := range strings.Split(dotted, ".") {
		if seg == "" {
			return invalid("%s %q has an empty segment", what, dotted)
		}
	}
	return nil
}

// Definition 由配置构造表定义。
func Definition(cfg Config) (*aggregate.Definition, error) {
	index := aggregate.IndexSpec{
		Name:     cfg.Index.Name,
		Accessor: contract.ParseAccessor(cfg.Index.Name, cfg.Index.Accessor, contract.KindString),
	}
	fields := make([]aggregate.FieldSpec, len(cfg.Fields))
	for i, f := range cfg.Fields {
		fields[i] = aggregate.FieldSpec{
			Name:      f.Name,
			Accessor:  contract.ParseAccessor(f.Name, f.Accessor, contract.ParseKind(f.Dtype)),
			Operation: f.Operation,
			New:       registry.Operation[f.Operation],
		}
	}
	return aggregate.NewDefinition(index, fields, aggregate.ParseOrderBy(cfg.OrderBy))
}

// Assemble 校验并构造运行组件与设置。严格选项解析在 registry 工厂中进行。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	d := Defaults()
	format := effName(cfg.OutputFormat, d.OutputFormat)

	def, err := Definition(cfg)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	r, err := registry.Reader[effName(cfg.Components.Reader, d.Components.Reader)](&cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	rd, err := registry.Renderer[format](&cfg.Options.Renderer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	w, err := registry.Writer[effName(cfg.Components.Writer, d.Components.Writer)](&cfg.Options.Writer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	comp := pipeline.Components{Reader: r, Renderer: rd, Writer: w}
	set := pipeline.Settings{
		Inputs:          cloneStrings(cfg.Inputs),
		Concurrency:     cfg.Concurrency,
		Definition:      def,
		Artifact:        contract.ArtifactID("report" + registry.FormatExt(format)),
		MetricsTextfile: cfg.Metrics.Textfile,
	}
	return comp, set, nil
}

func effName(got, def string) string {
	if strings.TrimSpace(got) == "" {
		return def
	}
	return strings.TrimSpace(got)
}
