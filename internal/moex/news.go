package moex

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	newsPageSize     = 50
	newsMaxPages     = 4
	neutralSentiment = 0.5
)

// tickerToNames maps tickers to Russian company names for news matching.
var tickerToNames = map[string][]string{
	"SBER": {"Сбербанк", "Сбер"},
	"GAZP": {"Газпром"},
	"LKOH": {"Лукойл", "ЛУКОЙЛ"},
	"GMKN": {"Норникель", "Норильский никель"},
	"NVTK": {"Новатэк", "НОВАТЭК"},
	"ROSN": {"Роснефть"},
	"YDEX": {"Яндекс"},
	"T":    {"Т-Банк", "Т-Технологии"},
	"MTSS": {"МТС"},
	"MGNT": {"Магнит"},
	"PLZL": {"Полюс"},
	"CHMF": {"Северсталь"},
	"ALRS": {"Алроса", "АЛРОСА"},
	"SNGS": {"Сургутнефтегаз"},
	"VTBR": {"ВТБ"},
	"MOEX": {"Мосбиржа", "Московская биржа"},
	"TATN": {"Татнефть"},
	"NLMK": {"НЛМК"},
	"PHOR": {"ФосАгро"},
	"IRAO": {"Интер РАО"},
}

// Stems matched against lowercased titles.
var (
	positiveWords = []string{"рост", "прибыл", "дивиденд", "рекорд", "повыш", "увелич", "выкуп", "growth", "profit", "dividend", "record", "upgrade"}
	negativeWords = []string{"паден", "убыт", "сниж", "санкц", "штраф", "дефолт", "сокращ", "loss", "decline", "sanction", "fine", "default"}
)

type issNewsResponse struct {
	SiteNews issTable `json:"sitenews"`
}

func (c *Client) FetchRecentNews(ctx context.Context) ([]NewsItem, error) {
	var allNews []NewsItem
	cutoff := time.Now().Add(-24 * time.Hour)

	for page := 0; page < newsMaxPages; page++ {
		var iss issNewsResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"lang":  "ru",
				"start": fmt.Sprint(page * newsPageSize),
			}).
			SetResult(&iss).
			Get("/sitenews.json")
		if err != nil {
			return nil, fmt.Errorf("fetch news page %d: %w", page, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("MOEX news returned status %d", resp.StatusCode())
		}

		idx, err := iss.SiteNews.index("id", "title", "published_at")
		if err != nil {
			return nil, err
		}

		stoppedEarly := false
		for _, row := range iss.SiteNews.Data {
			if len(row) < len(iss.SiteNews.Columns) {
				continue
			}

			pubStr, _ := row[idx["published_at"]].(string)
			published, err := time.Parse(time.DateTime, pubStr)
			if err != nil {
				continue
			}
			if published.Before(cutoff) {
				stoppedEarly = true
				break
			}

			title, _ := row[idx["title"]].(string)
			allNews = append(allNews, NewsItem{
				ID:        int64(toFloat64(row[idx["id"]])),
				Title:     title,
				Published: published,
			})
		}

		if stoppedEarly || len(iss.SiteNews.Data) < newsPageSize {
			break
		}
	}

	return allNews, nil
}

// FilterNewsForTickers returns news items grouped by ticker, matching by ticker symbol or Russian company name in the title.
func FilterNewsForTickers(news []NewsItem, tickers []string) map[string][]NewsItem {
	result := make(map[string][]NewsItem)

	for _, ticker := range tickers {
		searchTerms := []string{strings.ToUpper(ticker)}
		if names, ok := tickerToNames[ticker]; ok {
			searchTerms = append(searchTerms, names...)
		}

		for _, item := range news {
			titleUpper := strings.ToUpper(item.Title)
			for _, term := range searchTerms {
				if strings.Contains(titleUpper, strings.ToUpper(term)) {
					result[ticker] = append(result[ticker], item)
					break
				}
			}
		}
	}

	return result
}

// NewsSentiment scores recent MOEX headlines per ticker. Headlines are
// fetched once per TTL and shared by all tickers.
type NewsSentiment struct {
	client *Client
	ttl    time.Duration

	mu        sync.Mutex
	news      []NewsItem
	fetchedAt time.Time
}

func NewNewsSentiment(c *Client, ttl time.Duration) *NewsSentiment {
	return &NewsSentiment{client: c, ttl: ttl}
}

// Sentiment returns a score in [0,1]; 0.5 when no headline mentions the ticker.
func (s *NewsSentiment) Sentiment(ctx context.Context, assetID string) (float64, error) {
	news, err := s.recent(ctx)
	if err != nil {
		return neutralSentiment, err
	}
	return scoreHeadlines(FilterNewsForTickers(news, []string{assetID})[assetID]), nil
}

func (s *NewsSentiment) recent(ctx context.Context) ([]NewsItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fetchedAt.IsZero() && time.Since(s.fetchedAt) < s.ttl {
		return s.news, nil
	}
	news, err := s.client.FetchRecentNews(ctx)
	if err != nil {
		return nil, err
	}
	s.news = news
	s.fetchedAt = time.Now()
	return news, nil
}

func scoreHeadlines(items []NewsItem) float64 {
	var pos, neg int
	for _, item := range items {
		title := strings.ToLower(item.Title)
		for _, w := range positiveWords {
			if strings.Contains(title, w) {
				pos++
			}
		}
		for _, w := range negativeWords {
			if strings.Contains(title, w) {
				neg++
			}
		}
	}
	if pos+neg == 0 {
		return neutralSentiment
	}
	return neutralSentiment + neutralSentiment*float64(pos-neg)/float64(pos+neg)
}
