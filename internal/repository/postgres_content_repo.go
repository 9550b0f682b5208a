package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/churchconnect/internal/model"
	"github.com/lib/pq"
)

// PostgresContentRepo はPostgreSQLを使用したブランチコンテンツの参照リポジトリ。
// 書き込みは管理画面側の責務であり、このリポジトリは読み取りのみを提供する。
type PostgresContentRepo struct {
	db *sql.DB
}

// NewPostgresContentRepo はPostgresContentRepoを生成する。
func NewPostgresContentRepo(db *sql.DB) *PostgresContentRepo {
	return &PostgresContentRepo{db: db}
}

// ListEvents はfrom以降に開始する行事を開始日時の昇順で返す。
func (r *PostgresContentRepo) ListEvents(ctx context.Context, branchID string, from time.Time, limit int) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, branch_id, title, description, location, starts_at, ends_at, image_url, created_by, created_at, updated_at
		 FROM events
		 WHERE branch_id = $1 AND COALESCE(ends_at, starts_at) >= $2
		 ORDER BY starts_at ASC
		 LIMIT $3`,
		branchID, from, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var e model.Event
		var endsAt sql.NullTime
		var imageURL, createdBy sql.NullString
		if err := rows.Scan(&e.ID, &e.BranchID, &e.Title, &e.Description, &e.Location,
			&e.StartsAt, &endsAt, &imageURL, &createdBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.EndsAt = nullTimePtr(endsAt)
		e.ImageURL = imageURL.String
		e.CreatedBy = createdBy.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// ListSermons は説教を日付の降順で返す。
func (r *PostgresContentRepo) ListSermons(ctx context.Context, branchID string, limit int) ([]model.Sermon, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, branch_id, guid, title, description, speaker, sermon_date, media_url, media_type, thumbnail_url, created_at, updated_at
		 FROM sermons
		 WHERE branch_id = $1
		 ORDER BY sermon_date DESC
		 LIMIT $2`,
		branchID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sermons: %w", err)
	}
	defer rows.Close()

	sermons := []model.Sermon{}
	for rows.Next() {
		var s model.Sermon
		var guid, mediaURL, mediaType, thumbnail sql.NullString
		if err := rows.Scan(&s.ID, &s.BranchID, &guid, &s.Title, &s.Description, &s.Speaker,
			&s.SermonDate, &mediaURL, &mediaType, &thumbnail, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sermon: %w", err)
		}
		s.GUID = guid.String
		s.MediaURL = mediaURL.String
		s.MediaType = model.MediaType(mediaType.String)
		s.ThumbnailURL = thumbnail.String
		sermons = append(sermons, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sermons: %w", err)
	}
	return sermons, nil
}

// ListAnnouncements はnow時点で掲載中のお知らせを重要度、作成日時の順で返す。
func (r *PostgresContentRepo) ListAnnouncements(ctx context.Context, branchID string, now time.Time, limit int) ([]model.Announcement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, branch_id, title, content, priority, image_url, starts_at, expires_at, created_by, created_at, updated_at
		 FROM announcements
		 WHERE branch_id = $1 AND starts_at <= $2 AND (expires_at IS NULL OR expires_at > $2)
		 ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, created_at DESC
		 LIMIT $3`,
		branchID, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}
	defer rows.Close()

	announcements := []model.Announcement{}
	for rows.Next() {
		var a model.Announcement
		var priority string
		var imageURL, createdBy sql.NullString
		var expiresAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.BranchID, &a.Title, &a.Content, &priority, &imageURL,
			&a.StartsAt, &expiresAt, &createdBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan announcement: %w", err)
		}
		a.Priority = model.AnnouncementPriority(priority)
		a.ImageURL = imageURL.String
		a.ExpiresAt = nullTimePtr(expiresAt)
		a.CreatedBy = createdBy.String
		announcements = append(announcements, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate announcements: %w", err)
	}
	return announcements, nil
}

// ListMedia はメディアを作成日時の降順で返す。mediaTypeが空の場合は全種別を返す。
func (r *PostgresContentRepo) ListMedia(ctx context.Context, branchID string, mediaType model.MediaType, limit int) ([]model.Media, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, branch_id, title, description, media_url, media_type, thumbnail_url, duration_sec, artist, album, created_by, created_at, updated_at
		 FROM media
		 WHERE branch_id = $1 AND ($2::text = '' OR media_type = $2::text)
		 ORDER BY created_at DESC
		 LIMIT $3`,
		branchID, string(mediaType), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}
	defer rows.Close()

	media := []model.Media{}
	for rows.Next() {
		var m model.Media
		var kind string
		var thumbnail, artist, album, createdBy sql.NullString
		var duration sql.NullInt64
		if err := rows.Scan(&m.ID, &m.BranchID, &m.Title, &m.Description, &m.MediaURL, &kind,
			&thumbnail, &duration, &artist, &album, &createdBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan media: %w", err)
		}
		m.MediaType = model.MediaType(kind)
		m.ThumbnailURL = thumbnail.String
		m.DurationSec = int(duration.Int64)
		m.Artist = artist.String
		m.Album = album.String
		m.CreatedBy = createdBy.String
		media = append(media, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate media: %w", err)
	}
	return media, nil
}

// ListGroups は小グループを名前順で返す。
func (r *PostgresContentRepo) ListGroups(ctx context.Context, branchID string) ([]model.Group, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, branch_id, name, description, leader, meeting_time, location, image_url, is_open, max_members, member_count, created_at, updated_at
		 FROM groups
		 WHERE branch_id = $1
		 ORDER BY name ASC`,
		branchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := []model.Group{}
	for rows.Next() {
		var g model.Group
		var imageURL sql.NullString
		var maxMembers sql.NullInt64
		if err := rows.Scan(&g.ID, &g.BranchID, &g.Name, &g.Description, &g.Leader, &g.MeetingTime,
			&g.Location, &imageURL, &g.IsOpen, &maxMembers, &g.MemberCount, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		g.ImageURL = imageURL.String
		if maxMembers.Valid {
			n := int(maxMembers.Int64)
			g.MaxMembers = &n
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}
	return groups, nil
}

// ListRadioStations はラジオ局を返す。配信中の局を先に並べる。
func (r *PostgresContentRepo) ListRadioStations(ctx context.Context, branchID string) ([]model.RadioStation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, branch_id, name, description, stream_url, logo_url, is_live, current_show, created_at, updated_at
		 FROM radio_stations
		 WHERE branch_id = $1
		 ORDER BY is_live DESC, name ASC`,
		branchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list radio stations: %w", err)
	}
	defer rows.Close()

	stations := []model.RadioStation{}
	for rows.Next() {
		var s model.RadioStation
		var logo, show sql.NullString
		if err := rows.Scan(&s.ID, &s.BranchID, &s.Name, &s.Description, &s.StreamURL, &logo,
			&s.IsLive, &show, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan radio station: %w", err)
		}
		s.LogoURL = logo.String
		s.CurrentShow = show.String
		stations = append(stations, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate radio stations: %w", err)
	}
	return stations, nil
}

// ListForums は掲示板をタイトル順で返す。
func (r *PostgresContentRepo) ListForums(ctx context.Context, branchID string) ([]model.Forum, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, branch_id, title, description, category, topic_count, created_at, updated_at
		 FROM forums
		 WHERE branch_id = $1
		 ORDER BY title ASC`,
		branchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list forums: %w", err)
	}
	defer rows.Close()

	forums := []model.Forum{}
	for rows.Next() {
		var f model.Forum
		if err := rows.Scan(&f.ID, &f.BranchID, &f.Title, &f.Description, &f.Category,
			&f.TopicCount, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan forum: %w", err)
		}
		forums = append(forums, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate forums: %w", err)
	}
	return forums, nil
}

// ListBlogPosts は公開済みのブログ記事を公開日時の降順で返す。
func (r *PostgresContentRepo) ListBlogPosts(ctx context.Context, branchID string, now time.Time, limit int) ([]model.BlogPost, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, branch_id, title, excerpt, content, author, image_url, tags, published_at, created_at, updated_at
		 FROM blog_posts
		 WHERE branch_id = $1 AND published_at <= $2
		 ORDER BY published_at DESC
		 LIMIT $3`,
		branchID, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list blog posts: %w", err)
	}
	defer rows.Close()

	posts := []model.BlogPost{}
	for rows.Next() {
		var p model.BlogPost
		var imageURL sql.NullString
		var tags pq.StringArray
		if err := rows.Scan(&p.ID, &p.BranchID, &p.Title, &p.Excerpt, &p.Content, &p.Author,
			&imageURL, &tags, &p.PublishedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan blog post: %w", err)
		}
		p.ImageURL = imageURL.String
		p.Tags = []string(tags)
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate blog posts: %w", err)
	}
	return posts, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// compile-time interface check
var _ ContentRepository = (*PostgresContentRepo)(nil)
