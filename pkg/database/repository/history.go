package repository

import (
	"time"

	"github.com/hibikilabs/hibiki/pkg/database/models"
	"gorm.io/gorm"
)

// PlaybackStats aggregates the playback journal for reporting
type PlaybackStats struct {
	TotalPlayed  int           `json:"total_played"`
	TotalSkipped int           `json:"total_skipped"`
	TotalFailed  int           `json:"total_failed"`
	TotalAirtime time.Duration `json:"total_airtime"`
	LastPlayedAt time.Time     `json:"last_played_at"`
}

// HistoryRepository persists the playback journal and stream errors
type HistoryRepository interface {
	SavePlayback(record *models.PlaybackRecord) error
	SaveError(streamError *models.StreamError) error
	SaveListenerSample(sample *models.ListenerSample) error
	RecentPlaybacks(limit int) ([]models.PlaybackRecord, error)
	RecentErrors(limit int) ([]models.StreamError, error)
	GetPlaybackStats() (*PlaybackStats, error)
	PruneBefore(cutoff time.Time) (int64, error)
}

// HistoryRepositoryImpl implements HistoryRepository using GORM
type HistoryRepositoryImpl struct {
	db *gorm.DB
}

// NewHistoryRepository creates a new HistoryRepository implementation
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &HistoryRepositoryImpl{
		db: db,
	}
}

// SavePlayback saves a playback record to the database
func (r *HistoryRepositoryImpl) SavePlayback(record *models.PlaybackRecord) error {
	return r.db.Create(record).Error
}

// SaveError saves a stream error to the database
func (r *HistoryRepositoryImpl) SaveError(streamError *models.StreamError) error {
	return r.db.Create(streamError).Error
}

// SaveListenerSample saves a listener count sample to the database
func (r *HistoryRepositoryImpl) SaveListenerSample(sample *models.ListenerSample) error {
	return r.db.Create(sample).Error
}

// RecentPlaybacks returns the most recent playback records, newest first
func (r *HistoryRepositoryImpl) RecentPlaybacks(limit int) ([]models.PlaybackRecord, error) {
	var records []models.PlaybackRecord
	if err := r.db.Order("started_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// RecentErrors returns the most recent stream errors, newest first
func (r *HistoryRepositoryImpl) RecentErrors(limit int) ([]models.StreamError, error) {
	var streamErrors []models.StreamError
	if err := r.db.Order("timestamp DESC").
		Limit(limit).
		Find(&streamErrors).Error; err != nil {
		return nil, err
	}
	return streamErrors, nil
}

// GetPlaybackStats retrieves aggregated playback statistics
func (r *HistoryRepositoryImpl) GetPlaybackStats() (*PlaybackStats, error) {
	stats := &PlaybackStats{}

	var counts []struct {
		Outcome string
		Count   int64
	}
	if err := r.db.Model(&models.PlaybackRecord{}).
		Select("outcome, COUNT(*) as count").
		Group("outcome").
		Scan(&counts).Error; err != nil {
		return nil, err
	}

	for _, c := range counts {
		switch c.Outcome {
		case models.OutcomePlayed:
			stats.TotalPlayed = int(c.Count)
		case models.OutcomeSkipped:
			stats.TotalSkipped = int(c.Count)
		case models.OutcomeFailed:
			stats.TotalFailed = int(c.Count)
		}
	}

	var airtimeSeconds float64
	if err := r.db.Model(&models.PlaybackRecord{}).
		Select("COALESCE(SUM(duration_secs), 0)").
		Scan(&airtimeSeconds).Error; err != nil {
		return nil, err
	}
	stats.TotalAirtime = time.Duration(airtimeSeconds * float64(time.Second))

	var last models.PlaybackRecord
	if err := r.db.Order("started_at DESC").First(&last).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
		stats.LastPlayedAt = time.Time{}
	} else {
		stats.LastPlayedAt = last.StartedAt
	}

	return stats, nil
}

// PruneBefore deletes journal rows older than the cutoff and reports how many went
func (r *HistoryRepositoryImpl) PruneBefore(cutoff time.Time) (int64, error) {
	var total int64

	res := r.db.Where("started_at < ?", cutoff).Delete(&models.PlaybackRecord{})
	if res.Error != nil {
		return total, res.Error
	}
	total += res.RowsAffected

	res = r.db.Where("timestamp < ?", cutoff).Delete(&models.StreamError{})
	if res.Error != nil {
		return total, res.Error
	}
	total += res.RowsAffected

	res = r.db.Where("sampled_at < ?", cutoff).Delete(&models.ListenerSample{})
	if res.Error != nil {
		return total, res.Error
	}
	total += res.RowsAffected

	return total, nil
}

// NopHistoryRepository satisfies HistoryRepository when persistence is disabled
type NopHistoryRepository struct{}

// NewNopHistoryRepository creates a repository that drops everything it is given
func NewNopHistoryRepository() HistoryRepository {
	return &NopHistoryRepository{}
}

func (n *NopHistoryRepository) SavePlayback(record *models.PlaybackRecord) error       { return nil }
func (n *NopHistoryRepository) SaveError(streamError *models.StreamError) error        { return nil }
func (n *NopHistoryRepository) SaveListenerSample(sample *models.ListenerSample) error { return nil }

func (n *NopHistoryRepository) RecentPlaybacks(limit int) ([]models.PlaybackRecord, error) {
	return []models.PlaybackRecord{}, nil
}

func (n *NopHistoryRepository) RecentErrors(limit int) ([]models.StreamError, error) {
	return []models.StreamError{}, nil
}

func (n *NopHistoryRepository) GetPlaybackStats() (*PlaybackStats, error) {
	return &PlaybackStats{}, nil
}

func (n *NopHistoryRepository) PruneBefore(cutoff time.Time) (int64, error) {
	return 0, nil
}
