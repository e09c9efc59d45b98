package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/soaringjerry/whenwhy/internal/services"
)

type ImportCmd struct {
	File string `required:"" type:"existingfile" help:"Export written by GET /api/data/export or /api/data/export/{id}."`
}

func (c *ImportCmd) Run(app *appContext) error {
	ctx := context.Background()
	env, err := readExport(c.File)
	if err != nil {
		return err
	}
	store, err := app.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			app.log.Warn("close store", "err", cerr)
		}
	}()
	imported, skipped, err := services.NewExportService(store).ImportParticipants(ctx, *env)
	if err != nil {
		return fmt.Errorf("import %s: %w", c.File, err)
	}
	app.log.Info("import finished", "file", c.File, "imported", imported, "skipped", skipped)
	return nil
}

// readExport accepts both the full envelope and a single participant.
func readExport(path string) (*services.ExportEnvelope, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	if _, ok := probe["participants"]; ok {
		var env services.ExportEnvelope
		if err := dec.Decode(&env); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return &env, nil
	}
	var one services.ParticipantExport
	if err := dec.Decode(&one); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if one.ParticipantID == "" {
		return nil, fmt.Errorf("parse %s: no participants found", path)
	}
	return &services.ExportEnvelope{TotalParticipants: 1, Participants: []services.ParticipantExport{one}}, nil
}
