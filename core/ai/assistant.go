package ai

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
)

// Assistant runs the flows against a Model. It never retries: a failure is logged once and
// returned as an *UnavailableError.
type Assistant struct {
	model   Model
	prompts *Prompts
	timeout time.Duration
	logger  core.Logger
}

func NewAssistant(model Model, prompts *Prompts, conf *core.Config, logger core.Logger) *Assistant {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Assistant{
		model:   model,
		prompts: prompts,
		timeout: conf.AI.Timeout,
		logger:  logger,
	}
}

func (a *Assistant) Summarize(ctx context.Context, in SummarizeInput) (SummarizeOutput, error) {
	var out SummarizeOutput
	err := a.run(ctx, FlowSummarize, in, &out, func() error { return out.check() })
	return out, err
}

func (a *Assistant) Explain(ctx context.Context, in ExplainInput) (ExplainOutput, error) {
	var out ExplainOutput
	err := a.run(ctx, FlowExplain, in, &out, func() error { return out.check() })
	return out, err
}

func (a *Assistant) GenerateQuiz(ctx context.Context, in QuizInput) (QuizOutput, error) {
	in.Count = in.size()
	var out QuizOutput
	err := a.run(ctx, FlowQuiz, in, &out, func() error {
		if len(out.Questions) > in.Count {
			out.Questions = out.Questions[:in.Count]
		}
		return out.check()
	})
	if err != nil {
		return QuizOutput{}, err
	}
	return out, nil
}

func (a *Assistant) run(ctx context.Context, flow Flow, data interface{}, out interface{}, check func() error) error {
	prompt, err := a.prompts.Render(flow, data)
	if err == nil {
		err = a.generate(ctx, flow, prompt, out)
	}
	if err == nil {
		err = check()
	}
	if err != nil {
		a.logger.Error("AI flow failed", err, map[string]interface{}{"flow": string(flow)})
		return &UnavailableError{Flow: flow}
	}
	return nil
}

func (a *Assistant) generate(ctx context.Context, flow Flow, prompt string, out interface{}) error {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return errors.Wrapf(a.model.Generate(ctx, flow, prompt, out), "generating %s", flow)
}
