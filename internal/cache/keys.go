package cache

import "fmt"

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("sheltertrack:ratelimit:%s", keyPrefix)
}
