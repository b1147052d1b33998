package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/nitz7155/HiSmartStudy/internal/roi"
)

const serviceScript = "yolo_service.py"

// ErrTimeout is returned when the detection service does not answer in time.
var ErrTimeout = errors.New("detection service timed out")

// YOLODetector implements PresenceDetector and ItemDetector on top of a Python
// YOLO subprocess. Frames are written to stdin as a 4 byte big-endian length
// followed by JPEG bytes; the service answers with one JSON line per frame.
type YOLODetector struct {
	config    Config
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	stdoutRaw io.ReadCloser
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer
}

// NewYOLODetector creates a detector for the configured model.
// The Python process is started lazily on first detection.
func NewYOLODetector(config Config) (*YOLODetector, error) {
	if config.ModelPath == "" {
		return nil, fmt.Errorf("detector: model path is required")
	}
	if config.ScriptPath == "" {
		config.ScriptPath = findServiceScript()
	}
	if config.ScriptPath == "" {
		return nil, fmt.Errorf("detector: %s not found", serviceScript)
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	return &YOLODetector{config: config}, nil
}

// DetectPersons returns the person boxes in frame.
func (d *YOLODetector) DetectPersons(frame *gocv.Mat) ([]roi.Rect, error) {
	detections, err := d.detect(frame)
	if err != nil {
		return nil, err
	}

	boxes := make([]roi.Rect, 0, len(detections))
	for _, det := range detections {
		if det.isPerson() {
			boxes = append(boxes, det.Box)
		}
	}
	return boxes, nil
}

// DetectItems returns every labeled detection in frame.
func (d *YOLODetector) DetectItems(frame *gocv.Mat) ([]roi.Item, error) {
	detections, err := d.detect(frame)
	if err != nil {
		return nil, err
	}

	items := make([]roi.Item, len(detections))
	for i, det := range detections {
		items[i] = roi.Item{Name: det.Label, Box: det.Box, Confidence: det.Confidence}
	}
	return items, nil
}

// Close shuts down the Python process.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *YOLODetector) detect(frame *gocv.Mat) ([]jsonDetection, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("detect: empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	// Encode frame as JPEG
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	// Write length (4 bytes big-endian) + data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		d.kill()
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		d.kill()
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.readLine()
	if err != nil {
		// The stream is out of sync once a response is lost; restart.
		d.kill()
		return nil, err
	}

	var response struct {
		Detections []jsonDetection `json:"detections"`
		Error      string          `json:"error"`
	}
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("detection service: %s", response.Error)
	}

	d.resetIdleTimer()

	return response.Detections, nil
}

// readLine reads one response line, bounded by the configured timeout when
// the pipe supports deadlines.
func (d *YOLODetector) readLine() (string, error) {
	if dl, ok := d.stdoutRaw.(interface{ SetReadDeadline(time.Time) error }); ok {
		if err := dl.SetReadDeadline(time.Now().Add(d.config.Timeout)); err == nil {
			defer dl.SetReadDeadline(time.Time{})
		}
	}

	line, err := d.stdout.ReadString('\n')
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("read response: %w", err)
	}
	return line, nil
}

func (d *YOLODetector) ensureStarted() error {
	if d.started {
		return nil
	}

	pythonPath := d.config.PythonPath
	if pythonPath == "" {
		pythonPath = findVenvPython()
	}
	if pythonPath == "" {
		pythonPath = "python3"
	}

	args := []string{d.config.ScriptPath, "--model", d.config.ModelPath}
	if d.config.Confidence > 0 {
		args = append(args, "--conf", strconv.FormatFloat(d.config.Confidence, 'f', -1, 64))
	}
	if d.config.IoU > 0 {
		args = append(args, "--iou", strconv.FormatFloat(d.config.IoU, 'f', -1, 64))
	}
	if d.config.ImageSize > 0 {
		args = append(args, "--imgsz", strconv.Itoa(d.config.ImageSize))
	}

	d.cmd = exec.Command(pythonPath, args...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Service diagnostics go to our stderr
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start detection service: %w", err)
	}

	d.stdin = stdin
	d.stdoutRaw = stdout
	d.stdout = bufio.NewReader(stdout)
	d.started = true

	return nil
}

func (d *YOLODetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.clear()

	return err
}

// kill terminates a service whose protocol stream can no longer be trusted.
func (d *YOLODetector) kill() {
	if !d.started {
		return
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
	if d.stdin != nil {
		d.stdin.Close()
	}
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	d.cmd.Wait()
	d.clear()
}

func (d *YOLODetector) clear() {
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	d.stdoutRaw = nil
}

func (d *YOLODetector) resetIdleTimer() {
	if d.config.IdleTimeout <= 0 {
		return
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

func findServiceScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", serviceScript),
		filepath.Join("..", "scripts", serviceScript),
		filepath.Join(execDir, "scripts", serviceScript),
		filepath.Join(os.Getenv("HOME"), ".seatvision", "scripts", serviceScript),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".seatvision/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonDetection is one entry of the service response.
type jsonDetection struct {
	Label      string   `json:"label"`
	ClassID    int      `json:"class_id"`
	Confidence float64  `json:"confidence"`
	Box        roi.Rect `json:"box"`
}

func (d jsonDetection) isPerson() bool {
	if d.Label != "" {
		return d.Label == PersonLabel
	}
	return d.ClassID == 0
}
