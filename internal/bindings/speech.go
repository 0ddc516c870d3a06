package bindings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const speakTimeout = time.Minute

// CommandSpeaker speaks through an external program such as espeak or say.
//
// The arguments may contain {text} and {rate}. Without {text} the text is
// written to the program's stdin.
type CommandSpeaker struct {
	Command []string
}

func (s CommandSpeaker) Speak(text string, rate float64) error {
	if len(s.Command) == 0 {
		return errors.New("speech command not configured")
	}
	r := strconv.FormatFloat(rate, 'f', -1, 64)
	args := make([]string, 0, len(s.Command)-1)
	stdin := true
	for _, a := range s.Command[1:] {
		if strings.Contains(a, "{text}") {
			stdin = false
		}
		a = strings.ReplaceAll(a, "{text}", text)
		args = append(args, strings.ReplaceAll(a, "{rate}", r))
	}

	ctx, cancel := context.WithTimeout(context.Background(), speakTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, s.Command[0], args...)
	if stdin {
		cmd.Stdin = strings.NewReader(text)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", s.Command[0], err, msg)
		}
		return fmt.Errorf("%s: %w", s.Command[0], err)
	}
	return nil
}
