package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/goblimey/go-ntrip-client/rtcm/handler"
	"github.com/goblimey/go-ntrip-client/rtcm/station"
	"github.com/goblimey/go-ntrip-client/rtcm/utils"
)

func newDisplayCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "display FILE",
		Short: "Display the messages in a recorded RTCM3 file",
		Long: `display reads a file of RTCM3 data, such as one written by
"subscribe --record-dir", and prints a summary of each message.  Anything
that isn't an RTCM3 frame is skipped.  The file "-" is the standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var reader io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				reader = file
			}

			data, err := io.ReadAll(reader)
			if err != nil {
				return err
			}

			messages, skipped := scanFrames(handler.New(a.logger), data)

			if !a.tableOutput() {
				summaries := make([]messageSummary, 0, len(messages))
				for _, m := range messages {
					summaries = append(summaries, messageSummary{
						MessageType: m.MessageType,
						Length:      m.Length(),
						Title:       m.Title(),
					})
				}
				return a.print(cmd, summaries)
			}

			out := cmd.OutOrStdout()
			for _, m := range messages {
				fmt.Fprintln(out, describe(m))
			}
			fmt.Fprintf(out, "%d messages, %d bytes skipped\n", len(messages), skipped)
			return nil
		},
	}
}

// scanFrames extracts the message frames from data.  It returns the
// messages and the number of bytes that were not part of a frame.
func scanFrames(rtcmHandler *handler.Handler, data []byte) ([]*handler.Message, int) {
	var messages []*handler.Message
	skipped := 0

	for len(data) > 0 {
		start := bytes.IndexByte(data, utils.StartOfMessageFrame)
		if start < 0 {
			skipped += len(data)
			break
		}
		skipped += start
		data = data[start:]

		message, consumed, err := rtcmHandler.DecodeFrame(data)
		switch {
		case err == nil:
			messages = append(messages, message)
			data = data[consumed:]
		case errors.Is(err, handler.ErrIncompleteFrame):
			// Truncated at the end of the data.
			skipped += len(data)
			data = nil
		default:
			skipped++
			data = data[1:]
		}
	}

	return messages, skipped
}

// describe returns a one line summary of the message.  Station position
// messages are decoded.
func describe(message *handler.Message) string {
	summary := message.String()
	if !station.IsStationMessage(message.MessageType) {
		return summary
	}
	position, err := station.Decode(message)
	if err != nil {
		return summary + ": " + err.Error()
	}
	return summary + ": " + position.String()
}
