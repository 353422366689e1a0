package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Nistp/SerialTerminalGUI/config"
	"github.com/Nistp/SerialTerminalGUI/serialio"
)

func (a *App) listPorts(ctx *cli.Context) error {
	ports, err := serialio.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}
	for _, p := range ports {
		fmt.Printf("%-20s %s\n", p.Name, p.Description)
	}
	return nil
}

func (a *App) listTests(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return err
	}
	if len(cfg.Tests) == 0 {
		fmt.Println("No tests configured.")
		return nil
	}
	for _, tc := range cfg.Tests {
		state := " "
		if !tc.Enabled {
			state = "-"
		}
		fmt.Printf("%s %-24s %-24s terminator=%q timeout=%dms\n",
			state, tc.Name, tc.Command, tc.Terminator, tc.TimeoutMS)
	}
	return nil
}
