package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/k64z/steamstacks/steamguard"
)

// main drives a full enrollment over stdin/stdout: it repeatedly calls
// Enroll and asks the terminal for whatever state.Requires* next demands,
// then prints the current code once the account has a provisioned
// authenticator.
func main() {
	username := os.Getenv("STEAM_USERNAME")
	password := os.Getenv("STEAM_PASSWORD")
	if username == "" || password == "" {
		log.Fatal("main: STEAM_USERNAME and STEAM_PASSWORD must be set")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	state, err := steamguard.NewEnrollState(username, password)
	if err != nil {
		log.Fatalf("main: %v", err)
	}
	defer state.Drop()

	enroller := steamguard.NewEnroller(steamguard.WithEnrollerLogger(logger))

	for {
		_, err := enroller.Enroll(ctx, state)
		if err != nil {
			log.Fatalf("main: enroll: %v", err)
		}

		outcome := state.Outcome()
		switch outcome.Kind {
		case steamguard.OutcomeDone:
			fmt.Printf("enrolled: serial=%s revocation=%s\n", outcome.Record.Serial, outcome.RevocationCode)
			printSampleCodes(ctx, outcome.Record)
			return
		case steamguard.OutcomeFailed:
			log.Fatalf("main: enrollment failed: %s", outcome.Reason)
		case steamguard.OutcomeAwaitingCaptcha:
			fmt.Printf("enter the text shown at %s: ", outcome.CaptchaURL)
			state.CaptchaText = readLine(reader)
		case steamguard.OutcomeAwaitingEmailCode:
			fmt.Printf("enter the Steam Guard code emailed to your %s address: ", outcome.EmailDomain)
			state.EmailAuthText = readLine(reader)
		case steamguard.OutcomeAwaitingTwoFactor:
			log.Fatal("main: account already has a mobile authenticator enabled")
		case steamguard.OutcomeAwaitingActivationCode:
			fmt.Print("enter the activation code texted to your phone: ")
			state.ActivationCode = readLine(reader)
		case steamguard.OutcomeAwaitingLogin:
			// Enroll will retry the login sub-protocol on the next iteration.
		}
	}
}

func readLine(reader *bufio.Reader) string {
	line, err := reader.ReadString('\n')
	if err != nil {
		log.Fatalf("main: reading input: %v", err)
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}

func printSampleCodes(ctx context.Context, record *steamguard.Authenticator) {
	if err := record.Sync(ctx); err != nil {
		fmt.Printf("time sync failed, codes may drift: %v\n", err)
	}
	code, err := record.GenerateCode(ctx, false)
	if err != nil {
		fmt.Printf("generate code: %v\n", err)
		return
	}
	fmt.Printf("current code: %s\n", code)
}
