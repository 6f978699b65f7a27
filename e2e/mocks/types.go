package mocks

// Order is one position record as the proxy's orders endpoint returns it.
type Order struct {
	ID            string   `json:"id"`
	TraderUID     string   `json:"traderUid"`
	Trader        string   `json:"trader,omitempty"`
	Followers     int      `json:"followers,omitempty"`
	Symbol        string   `json:"symbol"`
	Mode          string   `json:"mode"`
	OpenPrice     float64  `json:"openPrice"`
	Amount        float64  `json:"amount"`
	Margin        float64  `json:"margin"`
	Leverage      float64  `json:"lev,omitempty"`
	MarginMode    string   `json:"marginMode,omitempty"`
	OpenAt        int64    `json:"openAt"`
	CloseAvgPrice *float64 `json:"closeAvgPrice,omitempty"`
}

// LeaderboardEntry is one trader of a leaderboard page.
type LeaderboardEntry struct {
	UID      string `json:"uid"`
	Nickname string `json:"nickName,omitempty"`
}

type leaderboardPage struct {
	Data struct {
		Content []LeaderboardEntry `json:"content"`
	} `json:"data"`
}

type ordersResponse struct {
	Success bool    `json:"success"`
	Data    []Order `json:"data"`
	Error   string  `json:"error,omitempty"`
}

type pricesResponse struct {
	Success bool               `json:"success"`
	Prices  map[string]float64 `json:"prices"`
	Error   string             `json:"error,omitempty"`
}

type summaryResponse struct {
	Success        bool   `json:"success"`
	ResultMarkdown string `json:"resultMarkdown,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Failure makes one endpoint answer with an error. A zero Status keeps
// HTTP 200 and reports the message in the success=false envelope.
type Failure struct {
	Status  int
	Message string
}
