// Package goftp provides pooled, resilient access to an FTP server.
//
// This package provides:
//   - A bounded pool of authenticated FTP sessions with validation and idle eviction
//   - Acquisition retries with exponential backoff for transient failures
//   - Recursive remote directory creation before uploads
//   - Upload, download, delete and listing operations that never leak a session
//   - Path name transcoding for servers that expect a non UTF-8 charset
//   - Optional SSH bastion tunnelling of control and data connections
//
// # Basic Usage
//
// Build a factory and a pool, then run operations through a Processor:
//
//	factory, err := goftp.NewSessionFactory(goftp.Config{
//		Host:     "ftp.example.com",
//		User:     "deploy",
//		Password: "secret",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	pool := goftp.NewPool(factory, goftp.DefaultPoolConfig())
//	defer pool.Close()
//	pool.PreWarm(ctx, 4)
//
//	proc := goftp.NewProcessor(pool)
//	if err := proc.Upload(ctx, "/reports/2024", "summary.csv", file); err != nil {
//		log.Printf("upload failed: %v", err)
//	}
//
// # Borrowing Sessions Directly
//
// Lower level access goes through Acquire and exactly one of Release or
// Discard:
//
//	s, err := pool.Acquire(ctx)
//	if err != nil {
//		return err
//	}
//	if err := s.Conn().NoOp(); err != nil {
//		pool.Discard(s)
//		return err
//	}
//	pool.Release(s)
//
// # Errors
//
// Failures can be classified with errors.Is against ErrConnectFailed,
// ErrValidationFailed, ErrPoolExhausted, ErrIOFailure, ErrNotInitialized,
// ErrTimeout, ErrPoolClosed and ErrNotFound.
package goftp
