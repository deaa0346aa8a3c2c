// Package upstream は外部カタログAPI（TMDb、Open Library）への共通HTTP取得処理を提供する。
// レート制限、サーキットブレーカー、レスポンスサイズ制限、JSONデコードを1か所にまとめる。
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/hitoshi/mediafav/internal/metrics"
)

// defaultUserAgent は外部APIへのリクエストに付与するUser-Agent。
const defaultUserAgent = "mediafav/1.0 (+https://github.com/hitoshi/mediafav)"

// ErrResponseTooLarge はレスポンスボディが上限を超えた場合に返される。
var ErrResponseTooLarge = errors.New("upstream response too large")

// StatusError は外部APIが200以外のステータスを返した場合のエラー。
type StatusError struct {
	Source     string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Source, e.StatusCode)
}

// IsNotFound はerrが外部APIの404を表す場合にtrueを返す。
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// IsBreakerOpen はerrがサーキットブレーカーによる遮断を表す場合にtrueを返す。
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Options はFetcherの設定。
type Options struct {
	// Source はログとメトリクスに使う接続先名（"tmdb"、"openlibrary"）。
	Source           string
	HTTPClient       *http.Client
	UserAgent        string
	RatePerSec       int
	MaxBodySize      int64
	FailureThreshold uint32
	BreakerTimeout   time.Duration
	Logger           *slog.Logger
	// Metrics はnilの場合は記録しない。
	Metrics metrics.MetricsCollector
}

// Fetcher は1つの外部APIに対するGETリクエストを実行する。
// 複数goroutineから同時に使用できる。
type Fetcher struct {
	source      string
	httpClient  *http.Client
	userAgent   string
	maxBodySize int64
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[[]byte]
	logger      *slog.Logger
	metrics     metrics.MetricsCollector
}

// NewFetcher はFetcherを生成する。
func NewFetcher(opts Options) *Fetcher {
	f := &Fetcher{
		source:      opts.Source,
		httpClient:  opts.HTTPClient,
		userAgent:   opts.UserAgent,
		maxBodySize: opts.MaxBodySize,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
	if f.httpClient == nil {
		f.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if f.userAgent == "" {
		f.userAgent = defaultUserAgent
	}
	if f.maxBodySize <= 0 {
		f.maxBodySize = 2 << 20
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}

	if opts.RatePerSec > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec)
	} else {
		f.limiter = rate.NewLimiter(rate.Inf, 0)
	}

	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	f.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        opts.Source,
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn("サーキットブレーカーの状態が変化しました",
				slog.String("source", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			if f.metrics != nil {
				f.metrics.RecordBreakerState(name, to == gobreaker.StateOpen)
			}
		},
	})

	return f
}

// isBreakerSuccess は外部APIの障害とみなさないエラーを成功として扱う。
// 呼び出し元のキャンセルと、429を除く4xxは外部APIの障害ではない。
func isBreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests
	}
	return false
}

// Source は接続先名を返す。
func (f *Fetcher) Source() string {
	return f.source
}

// GetJSON はrawURLにGETリクエストを送り、レスポンスJSONをtargetにデコードする。
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, target any) error {
	start := time.Now()
	body, err := f.breaker.Execute(func() ([]byte, error) {
		return f.get(ctx, rawURL)
	})
	if f.metrics != nil {
		f.metrics.RecordUpstreamLatency(f.source, time.Since(start))
	}
	if err != nil {
		f.record(outcomeOf(err))
		f.logger.Warn("外部APIの呼び出しに失敗しました",
			slog.String("source", f.source),
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
		return err
	}

	if err := json.Unmarshal(body, target); err != nil {
		f.record(metrics.OutcomeFailure)
		f.logger.Warn("外部APIのレスポンスのパースに失敗しました",
			slog.String("source", f.source),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to decode %s response: %w", f.source, err)
	}

	f.record(metrics.OutcomeSuccess)
	return nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", redactURLError(err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", f.source, redactURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Source: f.source, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", f.source, err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, ErrResponseTooLarge
	}

	return body, nil
}

// sensitiveParams はエラーやログに出してはならないクエリパラメータ。
var sensitiveParams = []string{"api_key"}

// redactURLError はerrに含まれる*url.ErrorのURLから秘匿パラメータの値を伏せる。
// net/httpのエラー文字列はリクエストURLをそのまま含むため、ラップ前に書き換える。
func redactURLError(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	urlErr.URL = RedactURL(urlErr.URL)
	return err
}

// RedactURL はrawURLのクエリのうち秘匿パラメータの値を"REDACTED"に置き換える。
// パースできないURLはクエリごと取り除く。
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		if i := strings.IndexByte(rawURL, '?'); i >= 0 {
			return rawURL[:i]
		}
		return rawURL
	}
	q := u.Query()
	changed := false
	for _, key := range sensitiveParams {
		if q.Has(key) {
			q.Set(key, "REDACTED")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (f *Fetcher) record(outcome string) {
	if f.metrics != nil {
		f.metrics.RecordUpstreamRequest(f.source, outcome)
	}
}

func outcomeOf(err error) string {
	if IsBreakerOpen(err) {
		return metrics.OutcomeBreakerOpen
	}
	return metrics.OutcomeFailure
}
