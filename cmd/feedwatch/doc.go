// Command feedwatch polls a listing feed for new posts, filters them by
// community and title, logs every match and batches matches into periodic
// notifications (e-mail or Telegram).
//
// Usage:
//
//	feedwatch run -c feedwatch.yaml
//	feedwatch run -s golang -r '(?i)generics' --notify-email ops@example.com
//	feedwatch check -c feedwatch.yaml
//	feedwatch test-notify -c feedwatch.yaml
//	feedwatch deliveries -n 50
package main
