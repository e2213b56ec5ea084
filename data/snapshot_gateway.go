package data

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SnapshotGateway stores pre-reset database dumps, either in a local
// directory or in S3, and prunes old snapshots by retention count.
type SnapshotGateway struct {
	snapshotDir string
	s3Client    *s3.Client
	s3Bucket    string
	s3Path      string
	logger      zerolog.Logger
}

// NewSnapshotGateway creates a new SnapshotGateway instance
func NewSnapshotGateway(snapshotDir string, s3Bucket string, s3Path string,
	awsAccessKeyID string, awsSecretAccessKey string) (*SnapshotGateway, error) {

	sg := &SnapshotGateway{
		snapshotDir: snapshotDir,
		s3Bucket:    s3Bucket,
		s3Path:      s3Path,
		logger:      log.With().Str("component", "snapshot").Logger(),
	}

	// Setup S3 client if bucket is provided
	if s3Bucket != "" {
		ctx := context.Background()
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		// Override credentials if provided
		if awsAccessKeyID != "" && awsSecretAccessKey != "" {
			cfg.Credentials = credentials.NewStaticCredentialsProvider(awsAccessKeyID, awsSecretAccessKey, "")
		}

		sg.s3Client = s3.NewFromConfig(cfg)
	}

	return sg, nil
}

// Compress gzips srcPath into dstPath.
func Compress(srcPath string, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	gzWriter := gzip.NewWriter(dst)
	defer gzWriter.Close()

	_, err = io.Copy(gzWriter, src)
	return err
}

// StoreSnapshot persists a dump file for dbName and returns where it ended up.
func (sg *SnapshotGateway) StoreSnapshot(dumpPath string, dbName string) (string, error) {
	if sg.s3Bucket != "" {
		return sg.storeS3Snapshot(dumpPath, dbName)
	}
	return sg.storeLocalSnapshot(dumpPath, dbName)
}

// storeLocalSnapshot moves the dump into the per-database snapshot directory.
func (sg *SnapshotGateway) storeLocalSnapshot(dumpPath string, dbName string) (string, error) {
	dbSnapshotDir := filepath.Join(sg.snapshotDir, dbName)
	if err := os.MkdirAll(dbSnapshotDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	finalPath := filepath.Join(dbSnapshotDir, filepath.Base(dumpPath))
	if err := os.Rename(dumpPath, finalPath); err != nil {
		// Rename fails across filesystems; fall back to copy.
		if copyErr := copyFile(dumpPath, finalPath); copyErr != nil {
			return "", fmt.Errorf("failed to store snapshot: %w", copyErr)
		}
		os.Remove(dumpPath)
	}

	sg.logger.Info().Str("database", dbName).Str("path", finalPath).Msg("stored snapshot")
	return finalPath, nil
}

// storeS3Snapshot uploads the dump to S3 and removes the local copy.
func (sg *SnapshotGateway) storeS3Snapshot(dumpPath string, dbName string) (string, error) {
	file, err := os.Open(dumpPath)
	if err != nil {
		return "", fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	s3Key := fmt.Sprintf("%s/%s/%s", sg.s3Path, dbName, filepath.Base(dumpPath))
	ctx := context.Background()
	_, err = sg.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(sg.s3Bucket),
		Key:    aws.String(s3Key),
		Body:   file,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot to S3: %w", err)
	}

	file.Close()
	os.Remove(dumpPath)

	location := fmt.Sprintf("s3://%s/%s", sg.s3Bucket, s3Key)
	sg.logger.Info().Str("database", dbName).Str("location", location).Msg("stored snapshot")
	return location, nil
}

// CleanupSnapshots removes old snapshots beyond the retention count.
func (sg *SnapshotGateway) CleanupSnapshots(dbName string, retentionCount int) error {
	if retentionCount <= 0 {
		return nil
	}
	if sg.s3Bucket != "" {
		return sg.cleanupS3Snapshots(dbName, retentionCount)
	}
	return sg.cleanupLocalSnapshots(dbName, retentionCount)
}

// cleanupLocalSnapshots removes old local snapshots
func (sg *SnapshotGateway) cleanupLocalSnapshots(dbName string, retentionCount int) error {
	dbSnapshotDir := filepath.Join(sg.snapshotDir, dbName)
	if _, err := os.Stat(dbSnapshotDir); os.IsNotExist(err) {
		return nil
	}

	entries, err := os.ReadDir(dbSnapshotDir)
	if err != nil {
		return fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	// Filter snapshot files (.gz or .sql)
	var snapshots []os.FileInfo
	for _, entry := range entries {
		if !entry.IsDir() && (strings.HasSuffix(entry.Name(), ".gz") || strings.HasSuffix(entry.Name(), ".sql")) {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			snapshots = append(snapshots, info)
		}
	}

	// Sort by modification time (newest first)
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].ModTime().After(snapshots[j].ModTime())
	})

	if len(snapshots) > retentionCount {
		for _, old := range snapshots[retentionCount:] {
			path := filepath.Join(dbSnapshotDir, old.Name())
			if err := os.Remove(path); err != nil {
				sg.logger.Warn().Err(err).Str("snapshot", old.Name()).Msg("failed to remove old snapshot")
			} else {
				sg.logger.Info().Str("snapshot", old.Name()).Msg("removed old snapshot")
			}
		}
	}

	return nil
}

// cleanupS3Snapshots removes old S3 snapshots
func (sg *SnapshotGateway) cleanupS3Snapshots(dbName string, retentionCount int) error {
	prefix := fmt.Sprintf("%s/%s/", sg.s3Path, dbName)
	ctx := context.Background()

	paginator := s3.NewListObjectsV2Paginator(sg.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(sg.s3Bucket),
		Prefix: aws.String(prefix),
	})

	var objects []types.Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list S3 snapshots: %w", err)
		}
		objects = append(objects, page.Contents...)
	}

	// Sort by LastModified (newest first)
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(*objects[j].LastModified)
	})

	if len(objects) > retentionCount {
		for _, old := range objects[retentionCount:] {
			_, err := sg.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(sg.s3Bucket),
				Key:    old.Key,
			})
			if err != nil {
				sg.logger.Warn().Err(err).Str("key", *old.Key).Msg("failed to remove old S3 snapshot")
			} else {
				sg.logger.Info().Str("key", *old.Key).Msg("removed old S3 snapshot")
			}
		}
	}

	return nil
}

func copyFile(srcPath string, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
