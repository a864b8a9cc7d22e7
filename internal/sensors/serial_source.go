package sensors

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"

	"github.com/relabs-tech/gait_assist/internal/motion"
)

// SerialSource reads motion samples from an IMU dev board streaming CSV
// lines over a serial port: "ax,ay,az" or "ax,ay,az,gx,gy,gz"
// (acceleration in g, rotation rate in rad/s).
type SerialSource struct {
	port   io.ReadCloser
	reader *bufio.Reader
	logger *zap.Logger
}

// NewSerialSource opens the serial port.
// NOTE: adjust the port name to match your setup: /dev/serial0,
// /dev/ttyAMA0, /dev/ttyUSB0, etc.
func NewSerialSource(portName string, baudRate uint, logger *zap.Logger) (*SerialSource, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("motion sensor: open serial port %s: %w", portName, err)
	}
	logger.Info("serial motion source opened",
		zap.String("port", portName),
		zap.Uint("baud", baudRate),
	)

	return &SerialSource{
		port:   port,
		reader: bufio.NewReader(port),
		logger: logger,
	}, nil
}

// Next reads one CSV line. Unparseable lines are skipped.
func (s *SerialSource) Next() (motion.Sample, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return motion.Sample{}, fmt.Errorf("motion sensor: serial read: %w", err)
		}

		sample, ok := parseLine(strings.TrimSpace(line))
		if !ok {
			s.logger.Debug("skipping unparseable serial line", zap.String("line", line))
			continue
		}
		sample.Timestamp = time.Now()
		return sample, nil
	}
}

// Close releases the serial port.
func (s *SerialSource) Close() error {
	return s.port.Close()
}

func parseLine(line string) (motion.Sample, bool) {
	if line == "" {
		return motion.Sample{}, false
	}
	fields := strings.Split(line, ",")
	if len(fields) != 3 && len(fields) != 6 {
		return motion.Sample{}, false
	}

	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return motion.Sample{}, false
		}
		values[i] = v
	}

	sample := motion.Sample{Ax: values[0], Ay: values[1], Az: values[2]}
	if len(values) == 6 {
		sample.Gx, sample.Gy, sample.Gz = values[3], values[4], values[5]
		sample.HasRotation = true
	}
	return sample, true
}
