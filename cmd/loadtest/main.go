// Command loadtest drives a running bandmate server with concurrent
// performer/venue pairs. Each pair registers two accounts, opens a shared
// conversation, then exchanges messages over two live websocket sessions
// while counting what actually arrives on the other side.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost:8080"`
	WsURL   string `envconfig:"WS_URL" default:"ws://localhost:8080/ws"`
	// LT_PAIRS is the number of performer/venue pairs spawned concurrently.
	Pairs    int `envconfig:"LT_PAIRS" default:"25"`
	Messages int `envconfig:"LT_MESSAGES" default:"20"`
	// LT_COLOURS enables colorized output for better log readability
	Colours     bool          `envconfig:"LT_COLOURS" default:"true"`
	RecvTimeout time.Duration `envconfig:"LT_RECV_TIMEOUT" default:"15s"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type conversationResponse struct {
	ID string `json:"id"`
}

type pairResult struct {
	Pair     string
	Sent     int
	Received int
	Duration time.Duration
	Err      error
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("invalid config: ", err)
	}

	header := fmt.Sprintf("  ====== loadtest: %d pairs, %d messages each ======", cfg.Pairs, cfg.Messages)
	if cfg.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	fmt.Println(header)

	results := make([]pairResult, cfg.Pairs)
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < cfg.Pairs; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n] = runPair(cfg, n)
		}(i)
	}
	wg.Wait()

	report(cfg, results, time.Since(start))
}

// runPair registers a performer and a venue owner, creates their shared
// conversation over HTTP, then has both sides chat over websockets.
func runPair(cfg Config, n int) pairResult {
	res := pairResult{Pair: fmt.Sprintf("pair-%03d", n)}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	suffix := time.Now().UnixNano()
	performer, err := signup(cfg, fmt.Sprintf("perf-%d-%d@loadtest.local", n, suffix), "PERFORMER")
	if err != nil {
		res.Err = fmt.Errorf("performer signup: %w", err)
		return res
	}
	venue, err := signup(cfg, fmt.Sprintf("venue-%d-%d@loadtest.local", n, suffix), "VENUE_OWNER")
	if err != nil {
		res.Err = fmt.Errorf("venue signup: %w", err)
		return res
	}

	convID, err := createConversation(cfg, performer.token, venue.userID)
	if err != nil {
		res.Err = fmt.Errorf("create conversation: %w", err)
		return res
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	var sentA, sentB, recvA, recvB int
	var errA, errB error
	go func() {
		defer wsWg.Done()
		sentA, recvA, errA = chat(cfg, performer.token, convID, venue.userID)
	}()
	go func() {
		defer wsWg.Done()
		sentB, recvB, errB = chat(cfg, venue.token, convID, performer.userID)
	}()
	wsWg.Wait()

	res.Sent = sentA + sentB
	res.Received = recvA + recvB
	if errA != nil {
		res.Err = errA
	} else if errB != nil {
		res.Err = errB
	}
	return res
}

type account struct {
	token  string
	userID string
}

func signup(cfg Config, email, role string) (account, error) {
	body := map[string]string{
		"email":    email,
		"password": "Loadtest-Passw0rd!",
		"role":     role,
	}
	var resp tokenResponse
	if err := postJSON(cfg, "/api/auth/register", "", body, &resp); err != nil {
		return account{}, err
	}
	userID, err := subjectOf(resp.Token)
	if err != nil {
		return account{}, err
	}
	return account{token: resp.Token, userID: userID}, nil
}

// subjectOf extracts the user id from the token payload without verifying
// the signature. The server verifies; the load tool only needs the id.
func subjectOf(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode token payload: %w", err)
	}
	var claims struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("unmarshal token payload: %w", err)
	}
	return claims.UserID, nil
}

func createConversation(cfg Config, token, otherID string) (string, error) {
	var resp conversationResponse
	err := postJSON(cfg, "/api/conversations", token,
		map[string][]string{"participant_ids": {otherID}}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// chat sends cfg.Messages frames and counts frames received from the peer
// until the expected count or the receive timeout, whichever comes first.
func chat(cfg Config, token, convID, peerID string) (sent, received int, err error) {
	conn, _, err := websocket.DefaultDialer.Dial(cfg.WsURL+"?token="+token, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(cfg.RecvTimeout)
		for received < cfg.Messages {
			_ = conn.SetReadDeadline(deadline)
			var frame map[string]any
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if _, ok := frame["message_id"]; ok {
				received++
			}
		}
	}()

	for i := 0; i < cfg.Messages; i++ {
		frame := map[string]any{
			"conversation_id": convID,
			"receiver_id":     peerID,
			"content":         fmt.Sprintf("soundcheck %d", i),
		}
		if err := conn.WriteJSON(frame); err != nil {
			_ = conn.Close()
			<-done
			return sent, received, fmt.Errorf("write: %w", err)
		}
		sent++
	}

	<-done
	return sent, received, nil
}

func postJSON(cfg Config, path, token string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func report(cfg Config, results []pairResult, elapsed time.Duration) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Pair", "Sent", "Received", "Duration", "Error"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	var totalSent, totalRecv, failed int
	for _, r := range results {
		totalSent += r.Sent
		totalRecv += r.Received
		errMsg := ""
		if r.Err != nil {
			failed++
			errMsg = r.Err.Error()
		}
		table.Append([]string{
			r.Pair,
			fmt.Sprintf("%d", r.Sent),
			fmt.Sprintf("%d", r.Received),
			r.Duration.Round(time.Millisecond).String(),
			errMsg,
		})
	}
	table.Render()

	summary := fmt.Sprintf("sent=%d received=%d failed_pairs=%d elapsed=%s",
		totalSent, totalRecv, failed, elapsed.Round(time.Millisecond))
	if cfg.Colours {
		if failed > 0 {
			summary = color.New(color.FgRed).Render(summary)
		} else {
			summary = color.New(color.FgGreen).Render(summary)
		}
	}
	fmt.Println(summary)
}
