// Command audioclient plays a WAV file into a call as if it came from a browser
// microphone, then stops the call and saves the PDF report.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"call-assist-service/internal/service/capture"
)

type callView struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Banner string `json:"banner"`
}

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16-bit PCM)")
	serverURL := flag.String("server", "http://localhost:8080", "Call assist API base URL")
	reportPath := flag.String("report", "", "Where to save the PDF report (default call-report-<id>.pdf)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	src, err := capture.OpenWAV(*audioFile, true)
	if err != nil {
		log.Fatal().Err(err).Str("file", *audioFile).Msg("Failed to open audio file")
	}
	info := src.Info()
	log.Info().
		Int("sampleRate", info.SampleRate).
		Int("channels", info.Channels).
		Msg("WAV file opened")

	call, err := postCall(*serverURL + "/v1/calls")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start call")
	}
	if call.Status != "live" {
		log.Fatal().Str("status", call.Status).Str("banner", call.Banner).Msg("Call did not go live")
	}
	logger := log.With().Str("callId", call.ID).Logger()
	logger.Info().Msg("Call started")

	wsURL := "ws" + strings.TrimPrefix(*serverURL, "http") + "/v1/calls/" + call.ID + "/audio?rate=" + strconv.Itoa(info.SampleRate)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open audio socket")
	}

	var blocks int
	start := time.Now()
	for {
		samples, err := src.Read(ctx)
		if len(samples) > 0 {
			if werr := conn.WriteMessage(websocket.BinaryMessage, capture.EncodeFloat32LE(samples)); werr != nil {
				logger.Fatal().Err(werr).Msg("Failed to send audio")
			}
			blocks++
			if blocks%50 == 0 {
				logger.Info().Int("blocks", blocks).Dur("elapsed", time.Since(start)).Msg("Streaming")
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				logger.Error().Err(err).Msg("Failed to read audio")
			}
			break
		}
	}
	_ = src.Close()
	logger.Info().Int("blocks", blocks).Dur("elapsed", time.Since(start)).Msg("Finished streaming")

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	conn.Close()

	stopped, err := postCall(*serverURL + "/v1/calls/" + call.ID + "/stop")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to stop call")
	}
	logger.Info().Str("status", stopped.Status).Msg("Call stopped")

	// Give the closing analysis pass a moment to land before exporting.
	time.Sleep(2 * time.Second)

	out := *reportPath
	if out == "" {
		out = "call-report-" + call.ID + ".pdf"
	}
	if err := download(*serverURL+"/v1/calls/"+call.ID+"/report.pdf", out); err != nil {
		logger.Fatal().Err(err).Msg("Failed to download report")
	}
	logger.Info().Str("file", out).Msg("Report saved")
}

func postCall(url string) (callView, error) {
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		return callView{}, err
	}
	defer resp.Body.Close()

	var v callView
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return callView{}, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	return v, nil
}

func download(url, path string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
