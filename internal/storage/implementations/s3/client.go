package s3

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/salesforecast/pkg/errors"
)

// S3Config holds configuration for the artifact bucket
type S3Config struct {
	Region          string        `json:"region" mapstructure:"region"`
	Bucket          string        `json:"bucket" mapstructure:"bucket"`
	AccessKeyID     string        `json:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string        `json:"secret_access_key" mapstructure:"secret_access_key"`
	SessionToken    string        `json:"session_token,omitempty" mapstructure:"session_token"`
	Endpoint        string        `json:"endpoint,omitempty" mapstructure:"endpoint"`
	ForcePathStyle  bool          `json:"force_path_style" mapstructure:"force_path_style"`
	DisableSSL      bool          `json:"disable_ssl" mapstructure:"disable_ssl"`
	Prefix          string        `json:"prefix" mapstructure:"prefix"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries      int           `json:"max_retries" mapstructure:"max_retries"`
	PartSize        int64         `json:"part_size" mapstructure:"part_size"`
}

// SyncResult summarizes one Pull or Push.
type SyncResult struct {
	Transferred []string `json:"transferred"`
	Unchanged   []string `json:"unchanged"`
	Bytes       int64    `json:"bytes"`
}

// ArtifactSyncer mirrors model and scaler JSON files between a bucket
// prefix and a local artifact directory.
type ArtifactSyncer struct {
	config     *S3Config
	client     s3iface.S3API
	downloader s3manageriface.DownloaderAPI
	uploader   s3manageriface.UploaderAPI
	logger     *logrus.Logger
	mu         sync.RWMutex
}

// NewArtifactSyncer validates config. Call Connect before syncing.
func NewArtifactSyncer(config *S3Config, logger *logrus.Logger) (*ArtifactSyncer, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "S3 config cannot be nil")
	}
	if config.Bucket == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "S3 bucket is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ArtifactSyncer{config: config, logger: logger}, nil
}

// Connect creates the AWS session and transfer managers
func (s *ArtifactSyncer) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}

	awsConfig := &aws.Config{
		Region:     aws.String(s.config.Region),
		MaxRetries: aws.Int(s.config.MaxRetries),
	}
	if s.config.AccessKeyID != "" && s.config.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			s.config.AccessKeyID,
			s.config.SecretAccessKey,
			s.config.SessionToken,
		)
	}
	// S3-compatible services such as MinIO
	if s.config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(s.config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(s.config.ForcePathStyle)
	}
	if s.config.DisableSSL {
		awsConfig.DisableSSL = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return errors.WrapStorageError(err, errors.CodeConnectionFailed, "Failed to create AWS session")
	}

	client := s3.New(sess)
	s.client = client
	s.downloader = s3manager.NewDownloaderWithClient(client, func(d *s3manager.Downloader) {
		if s.config.PartSize > 0 {
			d.PartSize = s.config.PartSize
		}
	})
	s.uploader = s3manager.NewUploaderWithClient(client, func(u *s3manager.Uploader) {
		if s.config.PartSize > 0 {
			u.PartSize = s.config.PartSize
		}
	})

	s.logger.WithFields(logrus.Fields{
		"region": s.config.Region,
		"bucket": s.config.Bucket,
		"prefix": s.config.Prefix,
	}).Info("Connected to S3")
	return nil
}

// remoteObject is a listed artifact with its path relative to the prefix.
type remoteObject struct {
	key      string
	relPath  string
	size     int64
	modified time.Time
}

// Pull downloads every JSON artifact under the prefix into dir, skipping
// files whose local copy has the same size and is not older.
func (s *ArtifactSyncer) Pull(ctx context.Context, dir string) (*SyncResult, error) {
	client, downloader, _, err := s.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	objects, err := s.list(ctx, client)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{}
	for _, obj := range objects {
		local := filepath.Join(dir, filepath.FromSlash(obj.relPath))
		if upToDate(local, obj) {
			result.Unchanged = append(result.Unchanged, obj.relPath)
			continue
		}
		n, err := s.download(ctx, downloader, obj.key, local)
		if err != nil {
			return result, err
		}
		result.Transferred = append(result.Transferred, obj.relPath)
		result.Bytes += n
	}

	s.logger.WithFields(logrus.Fields{
		"bucket":      s.config.Bucket,
		"dir":         dir,
		"transferred": len(result.Transferred),
		"unchanged":   len(result.Unchanged),
		"bytes":       result.Bytes,
	}).Info("Pulled artifacts from S3")
	return result, nil
}

// Push uploads every JSON artifact below dir to the prefix.
func (s *ArtifactSyncer) Push(ctx context.Context, dir string) (*SyncResult, error) {
	_, _, uploader, err := s.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result := &SyncResult{}
	err = filepath.WalkDir(dir, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !isArtifact(p) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}

		_, err = uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket:      aws.String(s.config.Bucket),
			Key:         aws.String(s.objectKey(filepath.ToSlash(rel))),
			Body:        f,
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return errors.WrapStorageError(err, errors.CodeWriteFailed, "Failed to upload "+rel)
		}
		result.Transferred = append(result.Transferred, filepath.ToSlash(rel))
		result.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return result, err
	}

	s.logger.WithFields(logrus.Fields{
		"bucket":      s.config.Bucket,
		"dir":         dir,
		"transferred": len(result.Transferred),
	}).Info("Pushed artifacts to S3")
	return result, nil
}

func (s *ArtifactSyncer) list(ctx context.Context, client s3iface.S3API) ([]remoteObject, error) {
	var objects []remoteObject
	var badKey string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(s.listPrefix()),
	}
	err := client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if !isArtifact(key) {
				continue
			}
			rel, ok := s.relativePath(key)
			if !ok {
				badKey = key
				return false
			}
			objects = append(objects, remoteObject{
				key:      key,
				relPath:  rel,
				size:     aws.Int64Value(obj.Size),
				modified: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, errors.WrapStorageError(err, errors.CodeReadFailed, "Failed to list S3 artifacts")
	}
	if badKey != "" {
		return nil, errors.NewStorageError(errors.CodeReadFailed, "refusing S3 key outside artifact directory: "+badKey)
	}
	return objects, nil
}

// download writes to a temporary file first so readers never observe a
// partial artifact.
func (s *ArtifactSyncer) download(ctx context.Context, downloader s3manageriface.DownloaderAPI, key, local string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return 0, errors.WrapStorageError(err, errors.CodeWriteFailed, "Failed to create artifact directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(local), ".download-*")
	if err != nil {
		return 0, errors.WrapStorageError(err, errors.CodeWriteFailed, "Failed to create temporary file")
	}
	defer os.Remove(tmp.Name())

	n, err := downloader.DownloadWithContext(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	closeErr := tmp.Close()
	if err != nil {
		return 0, errors.WrapStorageError(err, errors.CodeReadFailed, "Failed to download "+key)
	}
	if closeErr != nil {
		return 0, errors.WrapError(closeErr, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to write "+local)
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		return 0, errors.WrapStorageError(err, errors.CodeWriteFailed, "Failed to move "+local)
	}

	s.logger.WithFields(logrus.Fields{"key": key, "bytes": n}).Debug("Downloaded artifact")
	return n, nil
}

func (s *ArtifactSyncer) conn() (s3iface.S3API, s3manageriface.DownloaderAPI, s3manageriface.UploaderAPI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.client == nil {
		return nil, nil, nil, errors.NewStorageError(errors.CodeConnectionFailed, "S3 not connected")
	}
	return s.client, s.downloader, s.uploader, nil
}

func (s *ArtifactSyncer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.Timeout)
}

func (s *ArtifactSyncer) listPrefix() string {
	prefix := strings.Trim(s.config.Prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func (s *ArtifactSyncer) objectKey(rel string) string {
	return s.listPrefix() + rel
}

// relativePath strips the prefix and rejects keys that would escape the
// destination directory.
func (s *ArtifactSyncer) relativePath(key string) (string, bool) {
	rel := strings.TrimPrefix(key, s.listPrefix())
	clean := path.Clean(rel)
	if rel == "" || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}

func isArtifact(name string) bool {
	return strings.EqualFold(path.Ext(filepath.ToSlash(name)), ".json")
}

func upToDate(local string, obj remoteObject) bool {
	info, err := os.Stat(local)
	if err != nil {
		return false
	}
	return info.Size() == obj.size && !info.ModTime().Before(obj.modified)
}
