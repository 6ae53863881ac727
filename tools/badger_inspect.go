// Command badger_inspect dumps the raw records of a bandmate badger store.
// Handy when debugging ordering or read-receipt issues without going
// through the HTTP API.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/olekukonko/tablewriter"
)

// rawMessage mirrors the on-disk message record written by the repositories
// package. Kept local so the tool stays usable against old snapshots even
// when the domain types move.
type rawMessage struct {
	ID             uint64               `cbor:"id"`
	ConversationID string               `cbor:"conversation_id"`
	SenderID       string               `cbor:"sender_id"`
	ReceiverID     string               `cbor:"receiver_id,omitempty"`
	Content        string               `cbor:"content"`
	ParentID       *uint64              `cbor:"parent_id,omitempty"`
	SentAt         time.Time            `cbor:"sent_at"`
	ReadAt         map[string]time.Time `cbor:"read_at,omitempty"`
}

type rawConversation struct {
	ID           string    `cbor:"id"`
	CreatedAt    time.Time `cbor:"created_at"`
	Participants []string  `cbor:"participants"`
}

func main() {
	dbPath := flag.String("db", "/tmp/bandmate/badger", "Path to badger DB")
	// Par défaut on cherche "msg:" pour éviter de percuter les index msgix:
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg: or conv:)")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).WithLoggingLevel(badger.ERROR))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Who", "Detail", "Reads"})
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

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			rawKey := string(item.Key())

			// On ignore explicitement les index secondaires
			if strings.HasPrefix(rawKey, "msgix:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				switch {
				case strings.HasPrefix(rawKey, "conv:"):
					var rec rawConversation
					if err := cbor.Unmarshal(v, &rec); err != nil {
						fmt.Printf("Error unmarshaling key %s: %v\n", rawKey, err)
						return nil
					}
					table.Append([]string{
						rawKey,
						"CONV",
						rec.CreatedAt.Format("15:04:05"),
						strings.Join(rec.Participants, ","),
						"",
						"",
					})
				default:
					var rec rawMessage
					if err := cbor.Unmarshal(v, &rec); err != nil {
						fmt.Printf("Error unmarshaling key %s: %v\n", rawKey, err)
						return nil
					}
					detail := rec.Content
					if len(detail) > 40 {
						detail = detail[:40]
					}
					reads := ""
					for userID, at := range rec.ReadAt {
						reads += fmt.Sprintf("%s@%s ", shortID(userID), at.Format("15:04:05"))
					}
					table.Append([]string{
						rawKey,
						"MSG",
						rec.SentAt.Format("15:04:05"),
						shortID(rec.SenderID),
						detail,
						reads,
					})
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

// shortID keeps the first 8 characters of a UUID for readability.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
