package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"heightmap.ai/internal/protocol"
	"heightmap.ai/internal/raster"
	"heightmap.ai/internal/sim/encoding"
	"heightmap.ai/internal/sim/terrain/gen"
)

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		width  = flag.Int("width", 257, "heightmap width")
		height = flag.Int("height", 257, "heightmap height")
		seed   = flag.Int64("seed", 0, "seed (0 keeps the server default)")
		noise  = flag.Float64("noise", 0, "noise amplitude (0 keeps the server default)")
		out    = flag.String("out", "", "write the received heightmap to this image path")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[wsclient] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	msg := protocol.GenerateMsg{
		Type:            protocol.TypeGenerate,
		ProtocolVersion: protocol.Version,
		RequestID:       "cli_1",
		Width:           *width,
		Height:          *height,
	}
	if *seed != 0 {
		msg.Seed = seed
	}
	if *noise != 0 {
		msg.NoiseAmplitude = noise
	}

	res, hm, err := generate(conn, msg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	logger.Printf("RESULT run=%s seed=%d %dx%d grid=%d rounds=%d range=[%.3f,%.3f] digest=%s",
		res.RunID, res.Seed, res.Width, res.Height, res.GridSize, res.Rounds, res.Min, res.Max, res.Digest)

	if *out != "" {
		format, err := raster.FormatFromPath(*out)
		if err != nil {
			logger.Fatalf("-out: %v", err)
		}
		if err := raster.WriteFile(*out, hm, raster.Options{Format: format}); err != nil {
			logger.Fatalf("write image: %v", err)
		}
		logger.Printf("wrote %s", *out)
	}
}

// generate sends msg and reads ROUND messages until the RESULT or ERROR for it
// arrives. Heights come back at float32 precision.
func generate(conn *websocket.Conn, msg protocol.GenerateMsg, logger *log.Logger) (protocol.ResultMsg, gen.Heightmap, error) {
	if err := conn.WriteJSON(msg); err != nil {
		return protocol.ResultMsg{}, gen.Heightmap{}, fmt.Errorf("send GENERATE: %w", err)
	}
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return protocol.ResultMsg{}, gen.Heightmap{}, fmt.Errorf("read: %w", err)
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			continue
		}
		if base.RequestID != "" && base.RequestID != msg.RequestID {
			continue
		}
		switch base.Type {
		case protocol.TypeRound:
			var r protocol.RoundMsg
			if err := json.Unmarshal(b, &r); err != nil {
				continue
			}
			if logger != nil {
				logger.Printf("ROUND %d/%d step=%d noise=%g", r.Round, r.Rounds, r.StepSize, r.NoiseAmplitude)
			}

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(b, &e); err != nil {
				return protocol.ResultMsg{}, gen.Heightmap{}, fmt.Errorf("bad ERROR message: %w", err)
			}
			return protocol.ResultMsg{}, gen.Heightmap{}, fmt.Errorf("%s: %s", e.Code, e.Message)

		case protocol.TypeResult:
			var res protocol.ResultMsg
			if err := json.Unmarshal(b, &res); err != nil {
				return res, gen.Heightmap{}, fmt.Errorf("bad RESULT message: %w", err)
			}
			if res.Encoding != encoding.EncodingF32 {
				return res, gen.Heightmap{}, errors.New("unsupported result encoding " + res.Encoding)
			}
			values, err := encoding.DecodeHeights(res.Data)
			if err != nil {
				return res, gen.Heightmap{}, err
			}
			hm, err := gen.HeightmapFromValues(res.Width, res.Height, values)
			return res, hm, err
		}
	}
}
