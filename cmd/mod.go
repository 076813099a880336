package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"go.dedis.ch/smpcreg/config"
	"go.dedis.ch/smpcreg/internal/dataset"
	"go.dedis.ch/smpcreg/peer/impl/summary"
	"golang.org/x/xerrors"
)

// -----------------------------------------------------------------------------
// Interactive CMD Prompt

var actionOpts = []string{
	"🌱 Run a demo fit",
	"🐙 Show last summary",
	"🍃 Exit",
}

type session struct {
	ctx  context.Context
	conf config.Config
	last *summary.Summary
	done bool
}

var actions = map[string]func(*session) error{
	actionOpts[0]: runDemo,
	actionOpts[1]: showSummary,
	actionOpts[2]: exit,
}

// StartCMD runs the interactive prompt until the user exits.
func StartCMD(conf config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
	}()

	fmt.Println("##########################################")
	fmt.Println("######   Encrypted OLS regression   ######")
	fmt.Println("##########################################")
	fmt.Println()

	s := &session{ctx: ctx, conf: conf}
	prompt := &survey.Select{
		Message: "What do you want to do ?",
		Options: actionOpts,
	}

	var action string
	for !s.done {
		err := survey.AskOne(prompt, &action)
		if err != nil {
			printError(err)
			return
		}

		method := actions[action]
		err = method(s)
		if err != nil {
			printError(err)
		}
	}
}

// -----------------------------------------------------------------------------
// CMD Actions

func runDemo(s *session) error {
	opts := dataset.DefaultSynthetic

	questions := []*survey.Question{
		{
			Name:     "holders",
			Prompt:   &survey.Input{Message: "Data holders:", Default: strconv.Itoa(opts.Holders)},
			Validate: positive,
		},
		{
			Name:     "rows",
			Prompt:   &survey.Input{Message: "Rows per holder:", Default: strconv.Itoa(opts.Rows)},
			Validate: positive,
		},
		{
			Name:     "features",
			Prompt:   &survey.Input{Message: "Features:", Default: strconv.Itoa(opts.Features)},
			Validate: positive,
		},
	}
	answers := struct {
		Holders  string
		Rows     string
		Features string
	}{}
	err := survey.Ask(questions, &answers)
	if err != nil {
		return err
	}

	opts.Holders, _ = strconv.Atoi(answers.Holders)
	opts.Rows, _ = strconv.Atoi(answers.Rows)
	opts.Features, _ = strconv.Atoi(answers.Features)

	compare := false
	err = survey.AskOne(&survey.Confirm{Message: "Compare with plaintext OLS?", Default: true}, &compare)
	if err != nil {
		return err
	}

	res, err := Demo(s.ctx, os.Stdout, s.conf, opts, compare)
	if err != nil {
		return err
	}
	s.last = res
	return nil
}

func showSummary(s *session) error {
	if s.last == nil {
		fmt.Println("No fit yet.")
		return nil
	}
	fmt.Println(s.last)
	return nil
}

func exit(s *session) error {
	s.done = true
	return nil
}

func positive(ans interface{}) error {
	str, _ := ans.(string)
	v, err := strconv.Atoi(str)
	if err != nil || v < 1 {
		return xerrors.Errorf("%q is not a positive integer", str)
	}
	return nil
}

func printError(err error) {
	fmt.Printf("❌ %v\n", err)
}
