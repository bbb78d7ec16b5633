package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	perrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"moul.io/zapgorm2"

	"github.com/bigredeye/cqa/internal/models"
)

type DataBase struct {
	*gorm.DB
}

type buildRecord struct {
	ID          string `gorm:"primaryKey"`
	Hostname    string
	ProjectName string    `gorm:"index:idx_builds_key"`
	Version     string    `gorm:"index:idx_builds_key"`
	Project     []byte    `gorm:"type:jsonb"`
	Steps       []byte    `gorm:"type:jsonb"`
	Status      string    `gorm:"index"`
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

func (buildRecord) TableName() string {
	return "builds"
}

type buildAccess struct {
	BuildID    string `gorm:"primaryKey"`
	AccessedAt time.Time
}

func (buildAccess) TableName() string {
	return "build_accesses"
}

func OpenDataBase(logger *zap.Logger, dsn string) (*DataBase, error) {
	zapLogger := zapgorm2.New(logger.Named("gorm"))
	zapLogger.SetAsDefault()
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: zapLogger,
	})
	if err != nil {
		return nil, perrors.Wrap(err, "Failed to open database")
	}

	err = db.AutoMigrate(&buildRecord{}, &buildAccess{})
	if err != nil {
		return nil, perrors.Wrap(err, "Failed to migrate database")
	}

	return &DataBase{db}, nil
}

func (db *DataBase) FindLastBuild(ctx context.Context, projectName, version string) (*models.Build, error) {
	var record buildRecord
	err := db.WithContext(ctx).
		Where("project_name = ? AND version = ?", projectName, version).
		Order("created_at DESC").
		Take(&record).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return record.toBuild()
}

func (db *DataBase) FindBuildsByStatus(ctx context.Context, status string) ([]*models.Build, error) {
	var records []buildRecord
	err := db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at").
		Find(&records).
		Error
	if err != nil {
		return nil, perrors.Wrap(err, "Failed to list builds")
	}

	builds := make([]*models.Build, 0, len(records))
	for i := range records {
		build, err := records[i].toBuild()
		if err != nil {
			return nil, err
		}
		builds = append(builds, build)
	}
	return builds, nil
}

func (db *DataBase) StoreBuild(ctx context.Context, build *models.Build) error {
	record, err := newBuildRecord(build)
	if err != nil {
		return err
	}
	err = db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"steps", "status", "updated_at"}),
	}).Create(record).Error
	return perrors.Wrapf(err, "Failed to store build %s", build.ID)
}

func (db *DataBase) LastAccessTime(ctx context.Context, buildID string) (time.Time, error) {
	var access buildAccess
	err := db.WithContext(ctx).Take(&access, "build_id = ?", buildID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return access.AccessedAt, nil
}

func (db *DataBase) StoreLastAccessTime(ctx context.Context, buildID string, at time.Time) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "build_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"accessed_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "build_accesses.accessed_at < excluded.accessed_at"},
		}},
	}).Create(&buildAccess{BuildID: buildID, AccessedAt: at}).Error
}

func newBuildRecord(build *models.Build) (*buildRecord, error) {
	project, err := json.Marshal(build.Project)
	if err != nil {
		return nil, perrors.Wrap(err, "Failed to encode project")
	}
	steps, err := json.Marshal(build.Steps)
	if err != nil {
		return nil, perrors.Wrap(err, "Failed to encode steps")
	}
	return &buildRecord{
		ID:          build.ID,
		Hostname:    build.Hostname,
		ProjectName: build.Project.Name,
		Version:     build.Version,
		Project:     project,
		Steps:       steps,
		Status:      build.Status,
		CreatedAt:   build.CreatedAt,
	}, nil
}

func (r *buildRecord) toBuild() (*models.Build, error) {
	build := &models.Build{
		ID:        r.ID,
		Hostname:  r.Hostname,
		Version:   r.Version,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
	if err := json.Unmarshal(r.Project, &build.Project); err != nil {
		return nil, perrors.Wrapf(err, "Failed to decode project of build %s", r.ID)
	}
	if err := json.Unmarshal(r.Steps, &build.Steps); err != nil {
		return nil, perrors.Wrapf(err, "Failed to decode steps of build %s", r.ID)
	}
	return build, nil
}
