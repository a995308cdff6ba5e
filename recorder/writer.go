// Package recorder writes the RTCM3 messages received from a caster to a
// daily log file with a datestamped name, for example "data.20240626.rtcm3".
// Each file holds no more than 24 hours worth of messages, which is what the
// organisations that post-process such logs expect.
//
// The messages arrive continuously and the host's clock may have drifted a
// little, so the Writer avoids logging around midnight.  Calls to Write
// within one minute before or after midnight UTC are ignored.  A cron job
// runs at one minute before midnight and moves the day's log into the
// "data.ready" subdirectory to signal that it's ready for processing, for
// example conversion to RINEX.  The first write after 00:01 creates the
// new day's file.
//
// If messages stop arriving, no new log file is created.
package recorder

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron"

	"github.com/goblimey/go-ntrip-client/rtcm/handler"
)

// ReadyDirectory is the subdirectory that finished logs are moved into.
const ReadyDirectory = "data.ready"

// endOfDaySpec runs the end of day job at 23:59:00 UTC.  The fields are
// second, minute, hour, day of month, month and day of week.
const endOfDaySpec = "0 59 23 * * *"

// Writer satisfies the io.Writer interface and writes data (which are
// presumed to be RTCM messages) to the daily log file.
type Writer struct {
	logMutex        sync.Mutex
	directory       string
	clock           Clock
	logger          *slog.Logger
	currentYYYYMMDD string   // The datestamp of the current log file.
	logFile         *os.File // The current log file (nil if not logging).
	cronjob         *cron.Cron
}

// This is a compile-time check that Writer implements the io.Writer interface.
var _ io.WriteCloser = (*Writer)(nil)

// New creates a Writer that logs into directory, creating it if
// necessary, and starts the end of day job.
func New(directory string, logger *slog.Logger) (*Writer, error) {
	writer, err := newWriterWithClock(directory, SystemClock{}, logger)
	if err != nil {
		return nil, err
	}

	writer.cronjob = cron.NewWithLocation(time.UTC)
	if err := writer.cronjob.AddFunc(endOfDaySpec, writer.EndOfDay); err != nil {
		return nil, fmt.Errorf("cannot schedule the end of day job: %w", err)
	}
	writer.cronjob.Start()

	return writer, nil
}

// newWriterWithClock creates a Writer with a supplied clock and no cron job.
// (This is used for testing.)
func newWriterWithClock(directory string, clock Clock, logger *slog.Logger) (*Writer, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, fmt.Errorf("cannot create the message log directory: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Writer{directory: directory, clock: clock, logger: logger}, nil
}

// Write writes the buffer to the daily log file, creating the file at the
// start of each day.
func (lw *Writer) Write(buffer []byte) (n int, err error) {

	// Avoid a race with EndOfDay.
	lw.logMutex.Lock()
	defer lw.logMutex.Unlock()

	if !lw.loggingAllowed() {
		// We have reached end of day and should not be logging.
		if lw.logFile != nil {
			// On the first call after end of day, save the log file.
			lw.closeLog(true)
		}
		// We don't log anything but we return the buffer length so that
		// caller doesn't think there has been an error.
		return len(buffer), nil
	}

	yyyymmdd := lw.todayYYYYMMDD()
	if lw.logFile == nil || yyyymmdd != lw.currentYYYYMMDD {
		// We have just started up or the day has rolled over.
		if lw.logFile != nil {
			lw.closeLog(true)
		}
		file, err := openFile(filepath.Join(lw.directory, getFilename(yyyymmdd)))
		if err != nil {
			return 0, err
		}
		lw.logger.Info("start of day", "file", file.Name())
		lw.currentYYYYMMDD = yyyymmdd
		lw.logFile = file
	}

	return lw.logFile.Write(buffer)
}

// WriteMessage writes the message frame to the log.
func (lw *Writer) WriteMessage(message *handler.Message) error {
	_, err := lw.Write(message.RawData)
	return err
}

// Close stops the end of day job and closes the current log file, leaving
// it in place.  A later Writer appends to it.
func (lw *Writer) Close() error {
	if lw.cronjob != nil {
		lw.cronjob.Stop()
	}

	lw.logMutex.Lock()
	defer lw.logMutex.Unlock()
	lw.closeLog(false)
	return nil
}

// todayYYYYMMDD returns today's date in the UTC timezone in yyyymmdd format.
func (lw *Writer) todayYYYYMMDD() string {
	return lw.clock.Now().In(time.UTC).Format("20060102")
}

// loggingAllowed return true if logging should be enabled, false otherwise.
// Logging is enabled all day except for one minute either side of midnight UTC.
func (lw *Writer) loggingAllowed() bool {
	nowUTC := lw.clock.Now().In(time.UTC)
	if nowUTC.Hour() == 0 && nowUTC.Minute() == 0 {
		return false
	}
	if nowUTC.Hour() == 23 && nowUTC.Minute() == 59 {
		return false
	}
	return true
}

// EndOfDay saves the day's log.  The cron job runs it just after logging is
// disabled at the end of the day, so it does not clash with a Write.  If it
// is delayed for some reason, the mutex prevents a race.  In the worst
// case, the log is not rolled over and contains material from more than
// one day.
func (lw *Writer) EndOfDay() {
	// Avoid a race with Write.
	lw.logMutex.Lock()
	defer lw.logMutex.Unlock()

	if lw.loggingAllowed() {
		lw.logger.Warn("end of day job run when logging is allowed")
		return
	}

	lw.closeLog(true)
}

// closeLog closes any open log file and, if save is true, moves it into
// the ready directory.  The caller must hold the mutex.
func (lw *Writer) closeLog(save bool) {
	if lw.logFile == nil {
		return
	}

	name := lw.logFile.Name()
	if err := lw.logFile.Close(); err != nil {
		lw.logger.Warn("error while closing the message log", "file", name, "error", err)
	}
	lw.logFile = nil

	if save {
		if err := lw.saveLog(name); err != nil {
			lw.logger.Error("cannot save the message log", "file", name, "error", err)
			return
		}
		lw.logger.Info("end of day", "saved", name)
	}
}

// saveLog moves the log file into the ready directory.
func (lw *Writer) saveLog(logFilename string) error {
	readyDirectory := filepath.Join(lw.directory, ReadyDirectory)
	if err := os.MkdirAll(readyDirectory, 0755); err != nil {
		return err
	}
	return os.Rename(logFilename, filepath.Join(readyDirectory, filepath.Base(logFilename)))
}

// getFilename returns the log filename for the day, for example
// "data.20240626.rtcm3".
func getFilename(yyyymmdd string) string {
	return "data." + yyyymmdd + ".rtcm3"
}

// openFile either creates and opens the file or, if it already exists,
// opens it in append mode.
func openFile(name string) (*os.File, error) {
	file, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("cannot open the message log: %w", err)
	}
	return file, nil
}
