package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	green     = color.New(color.FgGreen).SprintFunc()
	red       = color.New(color.FgRed).SprintFunc()
	yellow    = color.New(color.FgYellow).SprintFunc()
	bold      = color.New(color.Bold).SprintFunc()
	checkMark = green("✓")
	crossMark = red("✗")
	skipMark  = yellow("-")
)

// ErrSkipped marks a step that chose not to run. It does not fail the plan.
var ErrSkipped = errors.New("skipped")

// Step is one named stage of an experiment.
type Step struct {
	Name string
	Fn   func(context.Context) error
}

// Plan is an ordered list of steps that stops at the first failure.
type Plan struct {
	steps []Step
	out   io.Writer
}

// NewPlan creates an empty plan reporting progress to out.
func NewPlan(out io.Writer) *Plan {
	return &Plan{out: out}
}

// Step appends a step to the plan.
func (p *Plan) Step(name string, fn func(context.Context) error) *Plan {
	p.steps = append(p.steps, Step{Name: name, Fn: fn})
	return p
}

// Run executes each step in order and returns the first step error.
func (p *Plan) Run(ctx context.Context) error {
	var failure error

	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := p.runStep(ctx, step)
		switch {
		case err == nil:
			fmt.Fprintf(p.out, "%s %s\n", checkMark, step.Name)
		case errors.Is(err, ErrSkipped):
			fmt.Fprintf(p.out, "%s %s %s\n", skipMark, step.Name, yellow("(skipped)"))
		default:
			fmt.Fprintf(p.out, "%s %s\n", crossMark, step.Name)
			fmt.Fprintf(p.out, "\n  %s\n", err)
			failure = err
		}

		if failure != nil {
			break
		}
	}

	if failure != nil {
		fmt.Fprintf(p.out, "\n%s %s\n", bold("FAILED"), crossMark)
	} else {
		fmt.Fprintf(p.out, "\n%s %s\n", bold("PASSED"), checkMark)
	}

	return failure
}

// runStep turns a panicking step into a failed one.
func (p *Plan) runStep(ctx context.Context, step Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", step.Name, r)
		}
	}()

	return step.Fn(ctx)
}
