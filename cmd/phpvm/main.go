// Command phpvm runs and disassembles phpvm bytecode chunks.
//
// Grounded on smog's cmd/smog/main.go, whose run and disassemble commands
// this keeps (compile and repl are dropped, since this module has no
// front-end compiler); the hand-rolled os.Args switch is replaced
// with gopkg.in/urfave/cli.v1, the CLI framework adopted elsewhere in the
// pack for multi-command tools.
package main

import (
	"fmt"
	"os"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/kristofer/phpvm/internal/debug"
	"github.com/kristofer/phpvm/internal/executor"
	"github.com/kristofer/phpvm/internal/interner"
	"github.com/kristofer/phpvm/internal/runtimectx"
	"github.com/kristofer/phpvm/pkg/bytecode"
)

const version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "phpvm"
	app.Usage = "run and inspect phpvm bytecode chunks"
	app.Version = version

	app.Commands = []cli.Command{
		{
			Name:      "run",
			Usage:     "execute a compiled .sgc chunk",
			ArgsUsage: "<file.sgc>",
			Action:    runCommand,
		},
		{
			Name:      "disassemble",
			Aliases:   []string{"disasm"},
			Usage:     "print a chunk's instruction stream",
			ArgsUsage: "<file.sgc>",
			Action:    disasmCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "phpvm:", err)
		os.Exit(1)
	}
}

func loadChunk(path string, in *interner.Interner) (*bytecode.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return bytecode.Decode(f, in)
}

func runCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.NewExitError("no file specified", 1)
	}
	ctx := runtimectx.Build()
	defer ctx.Shutdown()

	chunk, err := loadChunk(c.Args().Get(0), ctx.Interner)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	exec := executor.New(ctx)
	if _, err := exec.Call(chunk, 0, 0, 0, nil); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	return nil
}

func disasmCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.NewExitError("no file specified", 1)
	}
	in := interner.New()
	chunk, err := loadChunk(c.Args().Get(0), in)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Print(debug.Disassemble(chunk, in))
	return nil
}
