package main

import (
	"context"
	"fmt"
	"io"

	"github.com/efebarandurmaz/docindex/internal/lifecycle"
	temporalmod "github.com/efebarandurmaz/docindex/internal/temporal"
)

func (a *app) runWorker(out io.Writer) error {
	temporalmod.SetDependencies(&temporalmod.Dependencies{
		Client:  a.client,
		Backend: a.backend,
		Chunker: a.chunkerConfig(),
		Logger:  a.logger,
	})

	c, err := a.dialTemporal()
	if err != nil {
		return err
	}
	a.shutdown.Register(lifecycle.Hook{
		Name:     "temporal-client",
		Priority: lifecycle.PriorityWorker + 1,
		Fn: func(context.Context) error {
			c.Close()
			return nil
		},
	})

	w, err := temporalmod.StartWorker(c, a.cfg.Temporal.TaskQueue)
	if err != nil {
		return err
	}
	a.shutdown.Register(lifecycle.WorkerHook(w.Stop))

	fmt.Fprintf(out, "Worker started on task queue: %s\n", a.cfg.Temporal.TaskQueue)
	<-a.ctx().Done()
	fmt.Fprintln(out, "Worker stopping")
	return nil
}
