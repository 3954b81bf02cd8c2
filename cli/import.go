package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"twine.work/common"
	"twine.work/config"
	"twine.work/cursor"
	"twine.work/dispatch"
	"twine.work/twineerr"
)

var (
	importConfigFile string
	importDebug      bool
	importOverrides  []string
	importType       string
	importUpdateName string
	importInitOnly   bool
)

// ImportCmd is the entry point for the twine-import binary: runs a
// single file (or stdin) through the same registry a running daemon
// dispatches against, per §6's import-tool flag set (`-t` forces MIME,
// `-u` switches to update mode, `-S` initialises storage then exits).
var ImportCmd = &cobra.Command{
	Use:   "twine-import [file]",
	Short: "run a file (or stdin) through the processor pipeline outside of the broker",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runImport,
}

func init() {
	ImportCmd.Flags().StringVarP(&importConfigFile, "config", "c", "", "configuration file")
	ImportCmd.Flags().BoolVarP(&importDebug, "debug", "d", false, "enable debug logging")
	ImportCmd.Flags().StringArrayVarP(&importOverrides, "define", "D", nil, "configuration override section:key[=value], repeatable")
	ImportCmd.Flags().StringVarP(&importType, "type", "t", "", "force the content type instead of inferring it from the file extension")
	ImportCmd.Flags().StringVarP(&importUpdateName, "update", "u", "", "run the named update handler instead of an input/bulk handler; the file argument is the identifier")
	ImportCmd.Flags().BoolVarP(&importInitOnly, "init", "S", false, "apply schema migrations, then exit without importing anything")
}

func runImport(cmd *cobra.Command, args []string) error {
	v := newViper()
	if err := loadConfigFile(v, importConfigFile); err != nil {
		return err
	}
	cfg := config.New(v)
	if err := applyOverrides(cfg, importOverrides); err != nil {
		return err
	}
	if importDebug {
		common.Logger.SetLevel(logrus.DebugLevel)
	}

	if importInitOnly {
		return runMigrations(cfg)
	}

	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if importUpdateName != "" {
		if len(args) != 1 {
			return twineerr.Newf(twineerr.BadConfig, "cli.runImport", "-u %s requires an identifier argument", importUpdateName)
		}
		return dispatch.Update(app.Ctx, importUpdateName, args[0])
	}

	var path string
	if len(args) == 1 {
		path = args[0]
	}

	mime := importType
	if mime == "" && path != "" {
		mime = inferMIME(path)
	}
	if mime == "" {
		return twineerr.New(twineerr.BadConfig, "cli.runImport", fmt.Errorf("content type could not be determined; pass -t explicitly when reading stdin or an unrecognised extension"))
	}

	r, subject, closeFn, err := openSource(path)
	if err != nil {
		return err
	}
	defer closeFn()

	registry := app.Ctx.Registry()
	if _, ok := registry.ResolveBulk(mime); ok {
		return runBulkWithResume(app, cfg, mime, path, r)
	}

	handler, ok := registry.ResolveInput(mime)
	if !ok {
		return twineerr.Newf(twineerr.NoHandler, "cli.runImport", "no input or bulk handler registered for %q", mime)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return twineerr.New(twineerr.UpstreamFailure, "cli.runImport", err)
	}
	common.Logger.WithField("size", humanize.Bytes(uint64(len(data)))).Debug("read import document")
	return handler(app.Ctx, mime, data, subject)
}

// runBulkWithResume drives a bulk import, resuming from a previously
// saved byte offset when `twine:resume-db` names a bbolt file and path
// is a real (seekable) file rather than stdin. The offset is checkpointed
// after every chunk RunBulk's underlying Read pulls in, and cleared once
// the import completes, so an interrupted run restarts just past its
// last flushed chunk instead of re-processing the whole file.
func runBulkWithResume(app *App, cfg *config.Accessor, mime, path string, r io.Reader) error {
	resumeDB := cfg.GetString(appSection, "resume-db", "")
	if resumeDB == "" || path == "" {
		return dispatch.RunBulk(app.Ctx, mime, r)
	}
	seeker, ok := r.(io.Seeker)
	if !ok {
		return dispatch.RunBulk(app.Ctx, mime, r)
	}

	store, err := cursor.Open(resumeDB)
	if err != nil {
		return err
	}
	defer store.Close()

	key, err := filepath.Abs(path)
	if err != nil {
		key = path
	}

	offset, err := store.Load(key)
	if err != nil {
		return err
	}
	if offset > 0 {
		if _, err := seeker.Seek(offset, io.SeekStart); err != nil {
			return twineerr.New(twineerr.UpstreamFailure, "cli.runBulkWithResume", err)
		}
	}

	cr := &checkpointingReader{r: r, store: store, key: key, offset: offset}
	if err := dispatch.RunBulk(app.Ctx, mime, cr); err != nil {
		return err
	}
	common.Logger.WithField("size", humanize.Bytes(uint64(cr.offset))).Info("bulk import complete")
	return store.Clear(key)
}

// checkpointingReader saves the cumulative byte offset read through it
// after every underlying Read call.
type checkpointingReader struct {
	r      io.Reader
	store  *cursor.Store
	key    string
	offset int64
}

func (c *checkpointingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.offset += int64(n)
		if saveErr := c.store.Save(c.key, c.offset); saveErr != nil {
			return n, saveErr
		}
	}
	return n, err
}

// openSource opens path (or stdin when path is empty) and derives the
// graph subject an input handler needs: the file's own path turned into
// a file:// IRI, or the literal "file://stdin" pseudo-subject when reading
// from standard input. Neither §6 nor the common flag set names a way to
// pass an explicit subject to the import tool, so this is the fallback:
// an operator importing into a specific named graph instead does so via
// a bulk handler (which groups by the document's own embedded graph
// IRIs) or a plug-in input handler that ignores the passed subject.
func openSource(path string) (io.Reader, string, func() error, error) {
	if path == "" {
		return os.Stdin, "file://stdin", func() error { return nil }, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", nil, twineerr.New(twineerr.UpstreamFailure, "cli.openSource", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return f, "file://" + abs, f.Close, nil
}
