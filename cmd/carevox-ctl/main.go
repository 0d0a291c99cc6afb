package main

import (
	"fmt"
	"os"
	"strings"

	cli "github.com/spf13/pflag"

	"carevox/internal/ipc"
)

const usage = `usage: carevox-ctl [flags] <command> [args]

commands:
  open | close | toggle     show or hide the assistant panel
  send [text]               ask a question (empty sends the transcript buffer)
  mic                       start/stop a single voice capture
  voice                     toggle hands-free voice mode
  hush                      stop speaking
  say <audio file>          feed a recording as the next utterance
  login <email> <password>  sign in to the store
  cart <message> <product>  add a suggested product to the cart
  log | state               show the conversation or the session state

flags:
`

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Daemon control socket")
	cli.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		cli.PrintDefaults()
	}
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		cli.Usage()
		os.Exit(2)
	}

	reply, err := ipc.SendCommand(*socket, ipc.ControlMessage{
		Cmd: args[0],
		Arg: strings.Join(args[1:], " "),
	})
	if err != nil {
		fmt.Println("carevox-daemon not running:", err)
		os.Exit(1)
	}

	if reply.Text != "" {
		fmt.Println(reply.Text)
	}
	if !reply.OK {
		os.Exit(1)
	}
}
