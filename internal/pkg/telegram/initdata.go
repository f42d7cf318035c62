package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	ErrInitDataMissingHash = errors.New("initData missing hash")
	ErrInitDataBadSign     = errors.New("initData signature mismatch")
)

// InitDataUser Mini-App initData 里携带的用户信息
type InitDataUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
}

// VerifyInitData 校验 Mini-App initData 签名并解出用户。
// 算法：secret = HMAC-SHA256("WebAppData", botToken)，
// hash = HMAC-SHA256(secret, 按键排序的 data-check-string)。
func VerifyInitData(initData, botToken string) (*InitDataUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("initData parse: %w", err)
	}

	gotHash := values.Get("hash")
	if gotHash == "" {
		return nil, ErrInitDataMissingHash
	}
	values.Del("hash")

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	dataCheckString := strings.Join(pairs, "\n")

	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(botToken))
	secret := secretMac.Sum(nil)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(dataCheckString))
	wantHash := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(wantHash), []byte(gotHash)) {
		return nil, ErrInitDataBadSign
	}

	userStr := values.Get("user")
	if userStr == "" {
		return nil, errors.New("initData missing user")
	}

	var user InitDataUser
	if err := json.Unmarshal([]byte(userStr), &user); err != nil {
		return nil, fmt.Errorf("initData user parse: %w", err)
	}
	return &user, nil
}
