// Package smartconnect is a minimal Angel One SmartAPI REST client covering
// session management and historical candles.
//
// Usage example:
//
//	sc := smartconnect.New(smartconnect.Config{APIKey: "your_api_key"})
//	if _, err := sc.GenerateSession(ctx, "CLIENTID", "PASSWORD", "123456"); err != nil { ... }
//	candles, err := sc.GetCandleData(ctx, smartconnect.CandleRequest{
//	    Exchange: "NSE", SymbolToken: "99926000", Interval: "FIVE_MINUTE",
//	    From: time.Now().AddDate(0, 0, -5), To: time.Now(),
//	})
package smartconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrTokenExpired marks responses rejected for a missing, invalid or
	// expired session. Callers log in again and retry.
	ErrTokenExpired = errors.New("smartapi session token rejected")
	// ErrLoginFailed is returned when loginByPassword reports status=false.
	ErrLoginFailed = errors.New("smartapi login failed")
)

// ---- Config & client ----

type Config struct {
	APIKey  string
	RootURL string        // default: https://apiconnect.angelone.in
	Timeout time.Duration // default: 7s
	Debug   bool

	UserType       string // default: USER
	SourceID       string // default: WEB
	ClientPublicIP string // default: 106.193.147.98
	ClientLocalIP  string // default: first non-loopback IPv4, else 127.0.0.1
	ClientMAC      string // default: first interface MAC

	// HTTPClient overrides the transport, e.g. in tests.
	HTTPClient *http.Client
}

// Client talks to SmartAPI. It is safe for concurrent use; the session
// tokens are guarded by a mutex.
type Client struct {
	apiKey  string
	rootURL string
	debug   bool

	httpClient *http.Client

	userType       string
	sourceID       string
	clientPublicIP string
	clientLocalIP  string
	clientMAC      string

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

const defaultRoot = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.user.profile": "/rest/secure/angelbroking/user/v1/getProfile",
	"api.candle.data":  "/rest/secure/angelbroking/historical/v1/getCandleData",
}

// New initializes the client, filling header defaults from the host.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.UserType == "" {
		cfg.UserType = "USER"
	}
	if cfg.SourceID == "" {
		cfg.SourceID = "WEB"
	}
	if cfg.ClientLocalIP == "" {
		cfg.ClientLocalIP = localIP()
	}
	if cfg.ClientPublicIP == "" {
		cfg.ClientPublicIP = "106.193.147.98"
	}
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = macAddress()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		apiKey:         cfg.APIKey,
		rootURL:        strings.TrimRight(cfg.RootURL, "/"),
		debug:          cfg.Debug,
		httpClient:     hc,
		userType:       cfg.UserType,
		sourceID:       cfg.SourceID,
		clientPublicIP: cfg.ClientPublicIP,
		clientLocalIP:  cfg.ClientLocalIP,
		clientMAC:      cfg.ClientMAC,
	}
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, address := range addrs {
		if ipNet, ok := address.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
			return ipNet.IP.String()
		}
	}
	return "127.0.0.1"
}

func macAddress() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}

// ---- Wire types ----

// envelope is the common SmartAPI response wrapper.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// APIError is a response SmartAPI rejected.
type APIError struct {
	HTTPStatus int
	ErrorCode  string
	Message    string
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return "smartapi " + e.ErrorCode + ": " + e.Message
	}
	return "smartapi: " + e.Message
}

// Session holds the tokens issued at login.
type Session struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// CandleRequest is a getCandleData query. From and To are sent in IST.
type CandleRequest struct {
	Exchange    string
	SymbolToken string
	Interval    string // ONE_MINUTE ... ONE_DAY
	From        time.Time
	To          time.Time
}

// RawCandle is one row of getCandleData.
type RawCandle struct {
	TS     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// ---- Helpers ----

var ist = time.FixedZone("IST", 5*3600+30*60)

const dateLayout = "2006-01-02 15:04"

func (c *Client) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", c.clientLocalIP)
	h.Set("X-ClientPublicIP", c.clientPublicIP)
	h.Set("X-MACAddress", c.clientMAC)
	h.Set("X-PrivateKey", c.apiKey)
	h.Set("X-UserType", c.userType)
	h.Set("X-SourceID", c.sourceID)

	c.mu.RLock()
	if c.accessToken != "" {
		h.Set("Authorization", "Bearer "+c.accessToken)
	}
	c.mu.RUnlock()
	return h
}

// isAuthFailure matches the error codes and messages SmartAPI uses for
// session problems (AG8001 invalid token, AG8002 expired, AG8003 missing).
func isAuthFailure(httpStatus int, env *envelope) bool {
	if httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden {
		return true
	}
	if env.ErrorType == "TokenException" || strings.HasPrefix(env.ErrorCode, "AG800") {
		return true
	}
	msg := strings.ToLower(env.Message)
	for _, s := range []string{"token", "auth", "unauthorized"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) post(ctx context.Context, route string, params any) (*envelope, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, errors.Errorf("unknown route: %s", route)
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rootURL+uri, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header = c.requestHeaders()

	if c.debug {
		log.Debugf("[smartapi] request: POST %s", route)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "POST %s", route)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s response", route)
	}
	if c.debug {
		log.Debugf("[smartapi] response: code=%d body=%s", resp.StatusCode, string(raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, errors.Wrapf(ErrTokenExpired, "%s: http %d", route, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "couldn't parse %s response (http %d)", route, resp.StatusCode)
	}

	if !env.Status || env.ErrorType != "" || resp.StatusCode >= 400 {
		apiErr := &APIError{HTTPStatus: resp.StatusCode, ErrorCode: env.ErrorCode, Message: env.Message}
		if isAuthFailure(resp.StatusCode, &env) {
			return &env, errors.Wrap(ErrTokenExpired, apiErr.Error())
		}
		return &env, apiErr
	}
	return &env, nil
}

// ---- Session ----

// HasSession reports whether an access token is held.
func (c *Client) HasSession() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken != ""
}

func (c *Client) setSession(s *Session) {
	c.mu.Lock()
	c.accessToken = s.JWTToken
	c.refreshToken = s.RefreshToken
	c.mu.Unlock()
}

// GenerateSession logs in with a client code, password (PIN) and current
// TOTP and stores the issued tokens on the client.
func (c *Client) GenerateSession(ctx context.Context, clientCode, password, totp string) (*Session, error) {
	params := map[string]string{"clientcode": clientCode, "password": password, "totp": totp}
	env, err := c.post(ctx, "api.login", params)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) || errors.Is(err, ErrTokenExpired) {
			return nil, errors.Wrap(ErrLoginFailed, err.Error())
		}
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(env.Data, &s); err != nil || s.JWTToken == "" {
		return nil, errors.Wrap(ErrLoginFailed, "unexpected login response format")
	}
	c.setSession(&s)
	return &s, nil
}

// TerminateSession logs out and clears the stored tokens.
func (c *Client) TerminateSession(ctx context.Context, clientCode string) error {
	_, err := c.post(ctx, "api.logout", map[string]string{"clientcode": clientCode})
	c.setSession(&Session{})
	return err
}

// ---- Market data ----

// GetCandleData returns the historical candles for req in the order
// SmartAPI sends them. An empty result is not an error.
func (c *Client) GetCandleData(ctx context.Context, req CandleRequest) ([]RawCandle, error) {
	params := map[string]string{
		"exchange":    req.Exchange,
		"symboltoken": req.SymbolToken,
		"interval":    req.Interval,
		"fromdate":    req.From.In(ist).Format(dateLayout),
		"todate":      req.To.In(ist).Format(dateLayout),
	}
	env, err := c.post(ctx, "api.candle.data", params)
	if err != nil {
		return nil, err
	}
	return parseCandles(env.Data)
}

// parseCandles decodes rows of [timestamp, open, high, low, close, volume].
func parseCandles(data json.RawMessage) ([]RawCandle, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var rows [][]json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, errors.Wrap(err, "decode candle rows")
	}

	out := make([]RawCandle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, errors.Errorf("candle row %d has %d fields, want 6", i, len(row))
		}
		var tsStr string
		if err := json.Unmarshal(row[0], &tsStr); err != nil {
			return nil, errors.Wrapf(err, "candle row %d timestamp", i)
		}
		ts, err := time.Parse(time.RFC3339, tsStr)
		if err != nil {
			return nil, errors.Wrapf(err, "candle row %d timestamp", i)
		}

		var vals [5]float64
		for j := range vals {
			if err := json.Unmarshal(row[j+1], &vals[j]); err != nil {
				return nil, errors.Wrapf(err, "candle row %d field %d", i, j+1)
			}
		}
		out = append(out, RawCandle{
			TS: ts, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4],
		})
	}
	return out, nil
}
