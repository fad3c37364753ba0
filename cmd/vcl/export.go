package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"vcl/adif"
	"vcl/cabrillo"
	"vcl/logerr"
	"vcl/session"
)

// openOutput returns stdout for "" or "-", otherwise a file that is renamed
// into place by the returned commit func. Call commit(false) to discard.
func openOutput(env *cliEnv, path string) (io.Writer, func(ok bool) error, error) {
	if path == "" || path == "-" {
		return env.stdout, func(bool) error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, nil, err
	}
	commit := func(ok bool) error {
		closeErr := tmp.Close()
		if !ok || closeErr != nil {
			_ = os.Remove(tmp.Name())
			return closeErr
		}
		return os.Rename(tmp.Name(), path)
	}
	return tmp, commit, nil
}

func openInput(env *cliEnv, path string) (io.Reader, func(), error) {
	if path == "-" {
		return env.stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func cmdCabrillo(env *cliEnv, args []string) error {
	fs, cfgPath := newFlagSet(env, "cabrillo")
	out := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	sess, err := openLog(cfg)
	if err != nil {
		return err
	}
	if _, err := sess.Summary(); err != nil {
		log.Printf("Score: %v; CLAIMED-SCORE omitted", err)
	}
	w, commit, err := openOutput(env, *out)
	if err != nil {
		return err
	}
	err = sess.WriteCabrillo(w, createdBy())
	if cerr := commit(err == nil); err == nil {
		err = cerr
	}
	if err == nil && *out != "" {
		fmt.Fprintf(env.stderr, "wrote %d contacts to %s\n", len(sess.Contacts()), *out)
	}
	return err
}

func cmdADIF(env *cliEnv, args []string) error {
	fs, cfgPath := newFlagSet(env, "adif")
	out := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	sess, err := openLog(cfg)
	if err != nil {
		return err
	}
	w, commit, err := openOutput(env, *out)
	if err != nil {
		return err
	}
	n, err := sess.WriteADIF(w, programID)
	if cerr := commit(err == nil); err == nil {
		err = cerr
	}
	if err == nil && *out != "" {
		fmt.Fprintf(env.stderr, "wrote %d records to %s\n", n, *out)
	}
	return err
}

// cmdConvert needs no configuration: the own call and grid come from each
// QSO line.
func cmdConvert(env *cliEnv, args []string) error {
	fs, _ := newFlagSet(env, "convert")
	out := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("convert: want exactly one Cabrillo file (or - for stdin)")
	}
	in, closeIn, err := openInput(env, fs.Arg(0))
	if err != nil {
		return err
	}
	defer closeIn()
	w, commit, err := openOutput(env, *out)
	if err != nil {
		return err
	}
	res, err := cabrillo.ConvertToADIF(in, w, programID)
	if cerr := commit(err == nil); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	for _, le := range res.Rejected {
		fmt.Fprintf(env.stderr, "skipped %v\n", le)
	}
	fmt.Fprintf(env.stderr, "converted %d QSO lines, skipped %d\n", res.Converted, len(res.Rejected))
	return nil
}

func cmdImport(env *cliEnv, args []string) error {
	fs, cfgPath := newFlagSet(env, "import")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("import: want exactly one ADIF file (or - for stdin)")
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	svc, err := openServices(cfg, false)
	if err != nil {
		return err
	}
	defer svc.Close()
	sess, err := svc.openSession(cfg, nil)
	if err != nil {
		return err
	}
	in, closeIn, err := openInput(env, fs.Arg(0))
	if err != nil {
		return err
	}
	defer closeIn()
	added, dupes, skipped, err := importADIF(sess, in, env.stderr)
	fmt.Fprintf(env.stdout, "imported %d contacts (%d duplicates), skipped %d records\n", added, dupes, skipped)
	return err
}

// importADIF adds every convertible record in file order; each lands at the
// top of the list, as if entered by hand.
func importADIF(sess *session.Session, r io.Reader, warn io.Writer) (added, dupes, skipped int, err error) {
	ar := adif.NewReader(r)
	for {
		rec, err := ar.Read()
		if errors.Is(err, io.EOF) {
			return added, dupes, skipped, nil
		}
		if logerr.Is(err, logerr.Format) {
			skipped++
			fmt.Fprintf(warn, "record %d: %v\n", ar.Count()+ar.Rejected(), err)
			continue
		}
		if err != nil {
			return added, dupes, skipped, fmt.Errorf("record %d: %w", ar.Count()+ar.Rejected()+1, err)
		}
		c, err := adif.ToContact(rec)
		if err != nil {
			skipped++
			fmt.Fprintf(warn, "record %d: %v\n", ar.Count()+ar.Rejected(), err)
			continue
		}
		check, err := sess.Add(c)
		if err != nil {
			return added, dupes, skipped, err
		}
		added++
		if check.Duplicate >= 0 {
			dupes++
		}
	}
}
