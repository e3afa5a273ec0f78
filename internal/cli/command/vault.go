package command

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/savevault/internal/core/domain"
	"github.com/yndnr/savevault/internal/vault"
)

// ============================================================================
// Views
// ============================================================================

type saveView struct {
	ID           string   `json:"id" yaml:"id"`
	Version      int      `json:"version" yaml:"version"`
	DigestAlg    string   `json:"digest_alg" yaml:"digest_alg"`
	Digest       string   `json:"digest" yaml:"digest"`
	Rotated      bool     `json:"rotated" yaml:"rotated"`
	Partitions   []string `json:"partitions" yaml:"partitions"`
	PayloadBytes int      `json:"payload_bytes" yaml:"payload_bytes" table:"bytes"`
	BlobBytes    int      `json:"blob_bytes" yaml:"blob_bytes" table:"bytes"`
	Ratio        float64  `json:"ratio" yaml:"ratio"`
}

func newSaveView(res *vault.SaveResult) saveView {
	return saveView{
		ID:           res.Envelope.ID,
		Version:      res.Envelope.Version,
		DigestAlg:    res.Envelope.DigestAlg,
		Digest:       res.Envelope.Digest,
		Rotated:      res.Rotated,
		Partitions:   res.Envelope.Metadata.Partitions,
		PayloadBytes: res.PayloadBytes,
		BlobBytes:    res.BlobBytes,
		Ratio:        res.Ratio(),
	}
}

type loadView struct {
	Slot         domain.Slot `json:"slot" yaml:"slot"`
	ID           string      `json:"id" yaml:"id"`
	Version      int         `json:"version" yaml:"version"`
	Migrated     bool        `json:"migrated" yaml:"migrated"`
	Verified     bool        `json:"verified" yaml:"verified"`
	CreatedAt    time.Time   `json:"created_at" yaml:"created_at"`
	PrimaryError string      `json:"primary_error,omitempty" yaml:"primary_error,omitempty"`
	Skipped      []string    `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

func newLoadView(res *vault.LoadResult) loadView {
	view := loadView{
		Slot:      res.Slot,
		ID:        res.Envelope.ID,
		Version:   res.Version,
		Migrated:  res.Migrated,
		Verified:  res.Verified,
		CreatedAt: res.Envelope.CreatedAt().UTC(),
		Skipped:   res.Skipped,
	}
	if res.PrimaryErr != nil {
		view.PrimaryError = res.PrimaryErr.Error()
	}
	return view
}

type infoView struct {
	Namespace   string   `json:"namespace" yaml:"namespace"`
	Backend     string   `json:"backend" yaml:"backend"`
	HasSave     bool     `json:"has_save" yaml:"has_save"`
	DisplayName string   `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Day         int64    `json:"day" yaml:"day"`
	Level       int64    `json:"level" yaml:"level"`
	Playtime    int64    `json:"playtime" yaml:"playtime"`
	Partitions  []string `json:"partitions" yaml:"partitions"`
	Configured  []string `json:"configured_partitions" yaml:"configured_partitions"`
}

type slotView struct {
	Slot        domain.Slot `json:"slot" yaml:"slot"`
	Status      string      `json:"status" yaml:"status"`
	Version     int         `json:"version,omitempty" yaml:"version,omitempty"`
	Migrated    bool        `json:"migrated" yaml:"migrated"`
	Verified    bool        `json:"verified" yaml:"verified"`
	ID          string      `json:"id,omitempty" yaml:"id,omitempty"`
	DigestAlg   string      `json:"digest_alg,omitempty" yaml:"digest_alg,omitempty"`
	Compression string      `json:"compression,omitempty" yaml:"compression,omitempty"`
	Sealed      bool        `json:"sealed" yaml:"sealed"`
	Bytes       int         `json:"bytes" yaml:"bytes" table:"bytes"`
	Error       string      `json:"error,omitempty" yaml:"error,omitempty" table:"-"`
}

// Slot statuses reported by verify.
const (
	statusOK      = "ok"
	statusMissing = "missing"
)

// ============================================================================
// Commands
// ============================================================================

// SaveCommand writes a state file to the primary slot.
func SaveCommand() *cli.Command {
	return &cli.Command{
		Name:  "save",
		Usage: "Save a state file to the primary slot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "from",
				Aliases:  []string{"f"},
				Usage:    "State `FILE`: a JSON object keyed by partition name",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "plain",
				Usage: "Read every JSON object as a record (no tagged maps)",
			},
		},
		Action: runSave,
	}
}

func runSave(c *cli.Context) error {
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}
	state, err := readState(c.String("from"), c.Bool("plain"))
	if err != nil {
		return err
	}
	if err := rt.applyState(state); err != nil {
		return err
	}

	res, err := rt.vault.Save(c.Context)
	if err != nil {
		return err
	}
	return render(c, newSaveView(res))
}

// LoadCommand loads the save and optionally writes the restored state.
func LoadCommand() *cli.Command {
	return &cli.Command{
		Name:  "load",
		Usage: "Load the save, falling back to the backup slot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Usage: "Write the restored state to `FILE`",
			},
		},
		Action: runLoad,
	}
}

func runLoad(c *cli.Context) error {
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}
	res, err := rt.vault.Load(c.Context)
	if err != nil {
		return err
	}

	if path := c.String("out"); path != "" {
		data, err := marshalState(rt.state())
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}
	return render(c, newLoadView(res))
}

// InfoCommand shows the primary slot summary without verifying it.
func InfoCommand() *cli.Command {
	return &cli.Command{
		Name:   "info",
		Usage:  "Show the save summary (no digest check)",
		Action: runInfo,
	}
}

func runInfo(c *cli.Context) error {
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}

	view := infoView{
		Namespace:  rt.vault.Namespace(),
		Backend:    rt.cfg.Storage.Backend,
		Configured: rt.vault.Partitions(),
	}
	view.HasSave, err = rt.vault.HasSave(c.Context)
	if err != nil {
		return err
	}
	if view.HasSave {
		meta, err := rt.vault.Metadata(c.Context)
		if err != nil {
			return err
		}
		view.DisplayName = meta.DisplayName
		view.Day = meta.Day
		view.Level = meta.Level
		view.Playtime = meta.Playtime
		view.Partitions = meta.Partitions
	}
	return render(c, view)
}

// VerifyCommand runs slots through the full load pipeline without applying.
func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Verify slots without loading them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "slot",
				Usage: "Slot to check: primary, backup or all",
				Value: "all",
			},
		},
		Action: runVerify,
	}
}

func runVerify(c *cli.Context) error {
	slots, err := parseSlots(c.String("slot"), true)
	if err != nil {
		return err
	}
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}

	views := make([]slotView, 0, len(slots))
	failed := 0
	for _, slot := range slots {
		view := slotView{Slot: slot, Status: statusOK}
		info, err := rt.vault.Inspect(c.Context, slot)
		switch {
		case errors.Is(err, domain.ErrNoSave):
			view.Status = statusMissing
		case err != nil:
			if errors.Is(err, domain.ErrBackendUnavailable) {
				return err
			}
			view.Status = vault.Kind(err)
			view.Error = err.Error()
			failed++
		default:
			view.Version = info.Version
			view.Migrated = info.Migrated
			view.Verified = info.Verified
			view.ID = info.Envelope.ID
			view.DigestAlg = info.Envelope.DigestAlg
			view.Compression = info.Compression.String()
			view.Sealed = info.Sealed
			view.Bytes = info.BlobBytes
		}
		views = append(views, view)
	}

	if err := render(c, views); err != nil {
		return err
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d slot(s) failed verification", failed), 1)
	}
	return nil
}

// DumpCommand prints a verified slot payload.
func DumpCommand() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "Print a verified slot payload as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "slot",
				Usage: "Slot to dump: primary or backup",
				Value: string(domain.SlotPrimary),
			},
		},
		Action: runDump,
	}
}

func runDump(c *cli.Context) error {
	slots, err := parseSlots(c.String("slot"), false)
	if err != nil {
		return err
	}
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}

	info, err := rt.vault.Inspect(c.Context, slots[0])
	if err != nil {
		return err
	}
	data, err := marshalState(info.Payload)
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(data)
	return err
}

// ExportCommand writes the current save as a portable blob.
func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Save and write the blob to a file",
		Description: "Without --from the existing save is loaded first, so the " +
			"export carries the same state. Either way a new save is written.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "out",
				Usage:    "Blob `FILE` to write",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "from",
				Usage: "State `FILE` to export instead of the current save",
			},
			&cli.BoolFlag{
				Name:  "plain",
				Usage: "Read every JSON object in --from as a record",
			},
		},
		Action: runExport,
	}
}

func runExport(c *cli.Context) error {
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}

	if path := c.String("from"); path != "" {
		state, err := readState(path, c.Bool("plain"))
		if err != nil {
			return err
		}
		if err := rt.applyState(state); err != nil {
			return err
		}
	} else if _, err := rt.vault.Load(c.Context); err != nil {
		return err
	}

	blob, err := rt.vault.ExportEnvelope(c.Context)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.String("out"), blob, 0o600); err != nil {
		return err
	}
	printf(c, "exported %d bytes to %s", len(blob), c.String("out"))
	return nil
}

// ImportCommand installs a blob as the primary slot and loads it.
func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Verify a blob, make it the primary slot and load it",
		ArgsUsage: "FILE",
		Action:    runImport,
	}
}

func runImport(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("import takes exactly one FILE argument", 2)
	}
	blob, err := os.ReadFile(c.Args().First())
	if err != nil {
		return err
	}
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}

	res, err := rt.vault.ImportEnvelope(c.Context, blob)
	if err != nil {
		return err
	}
	return render(c, newLoadView(res))
}

// ClearCommand removes both slots and the legacy keys.
func ClearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete both slots and the configured legacy keys",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "yes",
				Usage: "Confirm the deletion",
			},
		},
		Action: runClear,
	}
}

func runClear(c *cli.Context) error {
	if !c.Bool("yes") {
		return cli.Exit("refusing to clear without --yes", 2)
	}
	rt, err := openRuntime(c)
	if err != nil {
		return err
	}
	if err := rt.vault.Clear(c.Context); err != nil {
		return err
	}
	printf(c, "cleared namespace %s", rt.vault.Namespace())
	return nil
}

// parseSlots resolves a --slot value. "all" is accepted when allowAll is set.
func parseSlots(name string, allowAll bool) ([]domain.Slot, error) {
	if allowAll && name == "all" {
		return []domain.Slot{domain.SlotPrimary, domain.SlotBackup}, nil
	}
	slot := domain.Slot(name)
	if !slot.Valid() {
		return nil, cli.Exit(fmt.Sprintf("unknown slot %q", name), 2)
	}
	return []domain.Slot{slot}, nil
}
