package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/leftmike/kura/engine"
	"github.com/leftmike/kura/file"
	"github.com/leftmike/kura/tx"
	"github.com/leftmike/kura/tx/recovery"
	"github.com/leftmike/kura/wal"
)

const helpText = `commands:
  begin                              start a transaction
  commit | rollback                  end the transaction
  pin <file> <blk>                   pin a block
  unpin <file> <blk>                 unpin a block
  getint <file> <blk> <offset>       read an int32
  getstring <file> <blk> <offset>    read a string
  setint <file> <blk> <offset> <n>   write an int32
  setstring <file> <blk> <offset> <s> write a string
  append <file>                      extend a file with a zeroed block
  size <file>                        number of blocks in a file
  available                          unpinned buffers
  checkpoint                         quiesce and checkpoint the engine
  log                                dump the write ahead log
  help                               this text
  exit | quit
`

// Repl runs block level commands from readLine against a running
// engine; it is an operational surface for poking at transactions, not a
// query language.
func Repl(e *engine.Engine, readLine func() (string, error), w io.Writer) {
	ses := session{e: e, w: w}
	for {
		s, err := readLine()
		if err != nil {
			break
		}
		if !ses.command(s) {
			break
		}
	}

	if ses.tx != nil {
		ses.tx.Rollback()
		fmt.Fprintln(w, "open transaction rolled back")
	}
}

// RunScript feeds the lines of r to the repl.
func RunScript(e *engine.Engine, r io.Reader, w io.Writer) {
	scan := bufio.NewScanner(r)
	Repl(e,
		func() (string, error) {
			if !scan.Scan() {
				return "", io.EOF
			}
			return scan.Text(), nil
		}, w)
}

type session struct {
	e  *engine.Engine
	tx *tx.Transaction
	w  io.Writer
}

func (ses *session) command(s string) bool {
	args := strings.Fields(s)
	if len(args) == 0 || strings.HasPrefix(args[0], "#") {
		return true
	}

	cmd := strings.ToLower(args[0])
	switch cmd {
	case "exit", "quit":
		return false
	case "help":
		fmt.Fprint(ses.w, helpText)
	default:
		err := ses.run(cmd, args[1:])
		if err != nil {
			fmt.Fprintln(ses.w, err)
		}
	}
	return true
}

func (ses *session) active() (*tx.Transaction, error) {
	if ses.tx == nil {
		return nil, errors.New("no transaction; use begin")
	}
	return ses.tx, nil
}

func blockArg(args []string) (file.BlockId, error) {
	if len(args) < 2 {
		return file.BlockId{}, errors.New("expected <file> <blk>")
	}
	blknum, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil {
		return file.BlockId{}, fmt.Errorf("bad block number: %s", args[1])
	}
	return file.BlockId{Filename: args[0], Blknum: int32(blknum)}, nil
}

func offsetArg(args []string) (int, error) {
	if len(args) < 3 {
		return 0, errors.New("expected <file> <blk> <offset>")
	}
	offset, err := strconv.Atoi(args[2])
	if err != nil {
		return 0, fmt.Errorf("bad offset: %s", args[2])
	}
	return offset, nil
}

func (ses *session) run(cmd string, args []string) error {
	switch cmd {
	case "begin":
		if ses.tx != nil {
			return errors.New("transaction already open")
		}
		tx, err := ses.e.NewTransaction()
		if err != nil {
			return err
		}
		ses.tx = tx
		fmt.Fprintf(ses.w, "transaction %d started\n", tx.TxNumber())
	case "commit":
		tx, err := ses.active()
		if err != nil {
			return err
		}
		ses.tx = nil
		return tx.Commit()
	case "rollback":
		tx, err := ses.active()
		if err != nil {
			return err
		}
		ses.tx = nil
		return tx.Rollback()
	case "pin":
		tx, err := ses.active()
		if err != nil {
			return err
		}
		blk, err := blockArg(args)
		if err != nil {
			return err
		}
		return tx.Pin(blk)
	case "unpin":
		tx, err := ses.active()
		if err != nil {
			return err
		}
		blk, err := blockArg(args)
		if err != nil {
			return err
		}
		tx.Unpin(blk)
	case "getint":
		tx, err := ses.active()
		if err != nil {
			return err
		}
		blk, err := blockArg(args)
		if err != nil {
			return err
		}
		offset, err := offsetArg(args)
		if err != nil {
			return err
		}
		val, err := tx.GetInt(blk, offset)
		if err != nil {
			return err
		}
		fmt.Fprintf(ses.w, "%d\n", val)
	case "getstring":
		tx, err := ses.active()
		if err != nil {
			return err
		}
		blk, err := blockArg(args)
		if err != nil {
			return err
		}
		offset, err := offsetArg(args)
		if err != nil {
			return err
		}
		s, err := tx.GetString(blk, offset)
		if err != nil {
			return err
		}
		fmt.Fprintf(ses.w, "%s\n", s)
	case "setint":
		tx, err := ses.active()
		if err != nil {
			return err
		}
		blk, err := blockArg(args)
		if err != nil {
			return err
		}
		offset, err := offsetArg(args)
		if err != nil {
			return err
		}
		if len(args) < 4 {
			return errors.New("expected <file> <blk> <offset> <n>")
		}
		val, err := strconv.ParseInt(args[3], 10, 32)
		if err != nil {
			return fmt.Errorf("bad value: %s", args[3])
		}
		return tx.SetInt(blk, offset, int32(val), true)
	case "setstring":
		tx, err := ses.active()
		if err != nil {
			return err
		}
		blk, err := blockArg(args)
		if err != nil {
			return err
		}
		offset, err := offsetArg(args)
		if err != nil {
			return err
		}
		if len(args) < 4 {
			return errors.New("expected <file> <blk> <offset> <s>")
		}
		return tx.SetString(blk, offset, strings.Join(args[3:], " "), true)
	case "append":
		tx, err := ses.active()
		if err != nil {
			return err
		}
		if len(args) < 1 {
			return errors.New("expected <file>")
		}
		blk, err := tx.Append(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(ses.w, "appended %s\n", blk)
	case "size":
		tx, err := ses.active()
		if err != nil {
			return err
		}
		if len(args) < 1 {
			return errors.New("expected <file>")
		}
		size, err := tx.Size(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(ses.w, "%d\n", size)
	case "available":
		fmt.Fprintf(ses.w, "%d\n", ses.e.Available())
	case "checkpoint":
		if ses.tx != nil {
			return errors.New("finish the transaction first")
		}
		err := ses.e.Checkpoint()
		if err != nil {
			return err
		}
		fmt.Fprintln(ses.w, "checkpoint written")
	case "log":
		if ses.tx != nil {
			// The iterator flushes the log; keep that away from an open
			// transaction.
			return errors.New("finish the transaction first")
		}
		return DumpLog(ses.e.Log(), ses.w)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
	return nil
}

// DumpLog renders the log records, newest first.
func DumpLog(lm *wal.Manager, w io.Writer) error {
	it, err := lm.Iterator()
	if err != nil {
		return err
	}

	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader([]string{"type", "tx", "record"})

	for it.HasNext() {
		buf, err := it.Next()
		if err != nil {
			return err
		}
		rec, err := recovery.ParseRecord(buf)
		if err != nil {
			return err
		}
		tw.Append([]string{rec.Op().String(), strconv.Itoa(int(rec.TxNumber())),
			rec.String()})
	}
	tw.Render()
	fmt.Fprintf(w, "(%d records)\n", tw.NumLines())
	return nil
}
