package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-cd/pkg/checkpoint"
	"github.com/dd0wney/cluso-cd/pkg/comm"
	"github.com/dd0wney/cluso-cd/pkg/grid"
	"github.com/dd0wney/cluso-cd/pkg/logging"
)

var errCheckpointExists = errors.New("checkpoint already initialized")

func runInitCheckpoint(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	env, err := newRunEnv(cmd.Context(), cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	runID, err := initCheckpoint(cmd.Context(), env, initialStep)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: header and step 0 written\n", runID)
	return nil
}

// initCheckpoint writes a fresh header under a new run id and the cold-start
// concentrations as step 0. It refuses a store that already has a header.
func initCheckpoint(ctx context.Context, env *runEnv, dt float64) (string, error) {
	if env.store == nil {
		return "", errors.New("no checkpoint store configured")
	}
	hdr, err := env.store.Header(ctx)
	switch {
	case err == nil:
		return "", fmt.Errorf("%w: run %s", errCheckpointExists, hdr.RunID)
	case !errors.Is(err, checkpoint.ErrNoHeader):
		return "", err
	}

	h, err := env.newHandler(comm.Single{})
	if err != nil {
		return "", err
	}
	sc, err := h.CreateSolverContext(ctx)
	if err != nil {
		return "", err
	}
	c := grid.NewField(0, sc.Nx, sc.DOF)
	if err := h.InitializeConcentration(ctx, c); err != nil {
		return "", err
	}

	runID := uuid.NewString()
	if err := env.store.WriteHeader(ctx, h.Header(runID)); err != nil {
		return "", err
	}
	st := h.NewStep(0, 0, dt)
	h.FillStep(st, c)
	if err := h.WriteStep(ctx, st); err != nil {
		return "", err
	}
	env.logger.Info("checkpoint initialized",
		logging.RunID(runID),
		logging.Count(sc.Nx),
		logging.DOF(sc.DOF),
	)
	return runID, nil
}
