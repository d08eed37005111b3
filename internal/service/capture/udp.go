package capture

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"edgeagent/internal/logger"
	"edgeagent/internal/model"
)

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

const maxDatagram = 65507

// UDPSource rebuilds JPEG frames sent by network cameras as a sequence of
// datagrams: a datagram starting with the JPEG SOI marker begins a frame and
// one ending with the EOI marker completes it. Senders are told apart by IP.
type UDPSource struct {
	conn        *net.UDPConn
	cameraNames map[string]string
	frames      chan *model.Frame
	buffers     map[string]*bytes.Buffer
	seq         uint64
	logger      *logger.Logger
	closeOnce   sync.Once
	stopped     chan struct{}
}

// ListenUDP binds addr (":9000") and starts reassembling frames.
// queueSize bounds the complete frames waiting for the pipeline; newer frames are dropped when it is full.
func ListenUDP(addr string, cameraNames map[string]string, queueSize int, logger *logger.Logger) (*UDPSource, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	if queueSize <= 0 {
		queueSize = 1
	}

	s := &UDPSource{
		conn:        conn,
		cameraNames: cameraNames,
		frames:      make(chan *model.Frame, queueSize),
		buffers:     make(map[string]*bytes.Buffer),
		logger:      logger,
		stopped:     make(chan struct{}),
	}
	go s.listen()
	logger.Info("UDP camera listener started on %s", conn.LocalAddr())
	return s, nil
}

// ListenPort is ListenUDP on every interface.
func ListenPort(port int, cameraNames map[string]string, queueSize int, logger *logger.Logger) (*UDPSource, error) {
	return ListenUDP(":"+strconv.Itoa(port), cameraNames, queueSize, logger)
}

// Addr returns the bound address.
func (s *UDPSource) Addr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *UDPSource) listen() {
	defer close(s.stopped)
	defer close(s.frames)

	buffer := make([]byte, maxDatagram)
	for {
		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Error reading UDP packet: %v", err)
			continue
		}
		s.handle(remoteAddr, buffer[:n])
	}
}

func (s *UDPSource) handle(remoteAddr *net.UDPAddr, data []byte) {
	ip := remoteAddr.IP.String()
	cameraName, exists := s.cameraNames[ip]
	if !exists {
		cameraName = "unknown_" + ip
	}

	imgBuffer, ok := s.buffers[cameraName]
	if !ok {
		imgBuffer = new(bytes.Buffer)
		s.buffers[cameraName] = imgBuffer
	}

	if bytes.HasPrefix(data, jpegHeader) {
		imgBuffer.Reset()
	}
	imgBuffer.Write(data)

	if !bytes.HasSuffix(data, jpegFooter) {
		return
	}

	fullFrame := make([]byte, imgBuffer.Len())
	copy(fullFrame, imgBuffer.Bytes())
	imgBuffer.Reset()

	s.seq++
	frame := &model.Frame{
		Seq:        s.seq,
		Source:     cameraName,
		CapturedAt: time.Now(),
		Format:     model.FormatJPEG,
		Data:       fullFrame,
	}
	select {
	case s.frames <- frame:
	default:
		s.logger.Warning("Frame queue full, dropping frame from %s", cameraName)
	}
}

// Capture waits for the next complete frame. It returns ctx.Err() when ctx ends
// and net.ErrClosed once the source is closed and drained.
func (s *UDPSource) Capture(ctx context.Context) (*model.Frame, error) {
	select {
	case frame, ok := <-s.frames:
		if !ok {
			return nil, net.ErrClosed
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the listener.
func (s *UDPSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
		<-s.stopped
	})
	return err
}
