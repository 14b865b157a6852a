package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// PromptForValue asks for a value on in, echoing the prompt to out.
// Returns def if the user enters nothing or input cannot be read.
func PromptForValue(in io.Reader, out io.Writer, label, def string) string {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		if err != io.EOF {
			log.Warn().Err(err).Str("prompt", label).Msg("Failed to read input, using default")
		}
		return def
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}
