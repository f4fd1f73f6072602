// ghostchat-inspect dumps the contents of a ghostchat pebble database for
// debugging: rooms, stored records (ciphertext intact), and optionally the
// decrypted bodies when a key is supplied. Point it at a copy; it opens the
// database directly.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"ghostchat/pkg/logger"
	"ghostchat/pkg/security"
	"ghostchat/pkg/store"
)

func main() {
	var (
		path       = flag.String("db", "", "pebble database path (required)")
		room       = flag.String("room", "", "dump records for one room only")
		limit      = flag.Int("limit", 0, "max records per room, 0 = all")
		passphrase = flag.String("passphrase", "", "decrypt bodies with this passphrase")
	)
	flag.Parse()
	if *path == "" {
		fmt.Fprintln(os.Stderr, "-db required")
		os.Exit(2)
	}
	logger.Init("error")

	st, err := store.Open(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *path, err)
		os.Exit(1)
	}
	defer st.Close()

	var env *security.Envelope
	if *passphrase != "" {
		if env, err = security.NewEnvelope(*passphrase); err != nil {
			fmt.Fprintf(os.Stderr, "envelope: %v\n", err)
			os.Exit(1)
		}
	}

	rooms := []string{*room}
	if *room == "" {
		if rooms, err = st.Rooms(); err != nil {
			fmt.Fprintf(os.Stderr, "list rooms: %v\n", err)
			os.Exit(1)
		}
	}

	for _, r := range rooms {
		recs, err := st.Snapshot(r, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "snapshot %s: %v\n", r, err)
			continue
		}
		fmt.Printf("room %s (%d records)\n", r, len(recs))
		for _, m := range recs {
			body := m.Ciphertext
			if env != nil && m.Ciphertext != "" {
				body = env.Decrypt(m.Ciphertext)
			}
			flags := ""
			if m.DeletedForEveryone {
				flags += " deleted-for-everyone"
			}
			if len(m.DeletedBy) > 0 {
				flags += fmt.Sprintf(" deleted-by=%v", m.DeletedBy)
			}
			if m.DisappearAt != 0 {
				flags += fmt.Sprintf(" disappears=%s", time.Unix(0, m.DisappearAt).Format(time.RFC3339))
			}
			fmt.Printf("  %s  %s  %s  %s  [%s]%s\n",
				m.ID, time.Unix(0, m.SentAt).Format(time.RFC3339),
				m.Author, m.Kind, body, flags)
		}
	}
}
