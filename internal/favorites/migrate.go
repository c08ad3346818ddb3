package favorites

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ngmaloney/weather-terminal/internal/identity"
	"github.com/ngmaloney/weather-terminal/internal/models"
)

// MigrationResult summarizes a Migrate run.
type MigrationResult struct {
	Repaired  int
	Merged    int
	Copied    int
	Discarded int
}

type repair struct {
	id     int64
	oldKey string
	uid    string
	key    string
	loc    models.Location
}

// Migrate assigns a UID to every favorite saved before UIDs existed. It is
// all or nothing: if any legacy favorite cannot be repaired, every favorite
// is deleted and ErrMigrationFailed is returned. After a successful repair
// each legacy cache slot is copied to the favorite's UID slot.
func (s *Store) Migrate(ctx context.Context) (MigrationResult, error) {
	rows, err := s.queryRows(ctx, selectColumns+" ORDER BY position, id")
	if err != nil {
		return MigrationResult{}, err
	}

	taken := make(map[string]bool)
	for _, r := range rows {
		if r.fav.UID != "" {
			taken[r.fav.UID] = true
		}
	}

	var (
		repairs    []repair
		duplicates []int64
		failed     []string
	)
	for _, r := range rows {
		if r.fav.UID != "" {
			continue
		}
		loc := s.recoverLocation(ctx, r.fav)
		uid, okUID := identity.ComputeUID(loc)
		key, okKey := identity.ComputeKey(loc)
		if !okUID || !okKey {
			failed = append(failed, r.fav.Name)
			continue
		}
		if taken[uid] {
			duplicates = append(duplicates, r.id)
			continue
		}
		taken[uid] = true
		repairs = append(repairs, repair{id: r.id, oldKey: r.fav.Key, uid: uid, key: key, loc: loc})
	}

	if len(failed) > 0 {
		n, err := s.deleteAll(ctx)
		if err != nil {
			return MigrationResult{}, err
		}
		zap.L().Error("favorites: migration failed, discarded all favorites",
			zap.Strings("unrepairable", failed),
			zap.Int("discarded", n),
		)
		return MigrationResult{Discarded: n}, eris.Wrapf(ErrMigrationFailed,
			"could not repair %s", strings.Join(failed, ", "))
	}
	if len(repairs) == 0 && len(duplicates) == 0 {
		return MigrationResult{}, nil
	}

	if err := s.applyRepairs(ctx, repairs, duplicates); err != nil {
		return MigrationResult{}, err
	}

	result := MigrationResult{Repaired: len(repairs), Merged: len(duplicates)}
	for _, rp := range repairs {
		if rp.oldKey == "" || s.slots == nil {
			continue
		}
		copied, err := s.slots.Copy(ctx, identity.LegacySlot(rp.oldKey), identity.UIDSlot(rp.uid))
		if err != nil {
			zap.L().Warn("favorites: copy legacy slot",
				zap.String("from", rp.oldKey),
				zap.String("uid", rp.uid),
				zap.Error(err),
			)
			continue
		}
		if copied {
			result.Copied++
		}
	}

	zap.L().Info("favorites: migrated",
		zap.Int("repaired", result.Repaired),
		zap.Int("merged", result.Merged),
		zap.Int("copied", result.Copied),
	)
	return result, nil
}

// recoverLocation prefers the location embedded in the favorite's legacy
// cached payload: older geocoder output stored a placeholder state on the
// favorite itself.
func (s *Store) recoverLocation(ctx context.Context, fav models.Favorite) models.Location {
	if fav.Key == "" || s.slots == nil {
		return fav.Location
	}
	entry, err := s.slots.Load(ctx, identity.LegacySlot(fav.Key))
	if err != nil || entry == nil {
		return fav.Location
	}
	if _, ok := identity.ComputeUID(entry.Payload.Location); !ok {
		return fav.Location
	}
	return entry.Payload.Location
}

func (s *Store) applyRepairs(ctx context.Context, repairs []repair, duplicates []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "favorites: begin migration")
	}
	defer tx.Rollback()

	for _, rp := range repairs {
		locJSON, err := json.Marshal(rp.loc)
		if err != nil {
			return eris.Wrap(err, "favorites: encode repaired location")
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE favorites SET uid = ?, key = ?, location = ? WHERE id = ?",
			rp.uid, rp.key, string(locJSON), rp.id,
		); err != nil {
			return eris.Wrapf(err, "favorites: repair %d", rp.id)
		}
	}
	for _, id := range duplicates {
		if _, err := tx.ExecContext(ctx, "DELETE FROM favorites WHERE id = ?", id); err != nil {
			return eris.Wrapf(err, "favorites: drop duplicate %d", id)
		}
	}
	return eris.Wrap(tx.Commit(), "favorites: commit migration")
}

func (s *Store) deleteAll(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM favorites")
	if err != nil {
		return 0, eris.Wrap(err, "favorites: discard all")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "favorites: discard rows affected")
}
