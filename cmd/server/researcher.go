package main

import (
	"context"
	"fmt"
	"os"

	"github.com/soaringjerry/whenwhy/internal/services"
)

type ResearcherAddCmd struct {
	Email    string `required:"" help:"Login email."`
	Password string `required:"" env:"WHENWHY_RESEARCHER_PASSWORD" help:"Login password."`
}

func (c *ResearcherAddCmd) Run(app *appContext) error {
	ctx := context.Background()
	store, err := app.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			app.log.Warn("close store", "err", cerr)
		}
	}()
	r, err := services.NewAuthService(store, nil, app.cfg.Auth.TokenTTL).Register(ctx, c.Email, c.Password)
	if err != nil {
		return err
	}
	app.log.Info("researcher created", "researcher", r.ID, "email", r.Email)
	fmt.Fprintf(os.Stdout, "created researcher %s (%s)\n", r.ID, r.Email)
	return nil
}
