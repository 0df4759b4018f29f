package mocks

//go:generate mockery --name ChangeSource --srcpkg github.com/aevon-lab/matview/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
//go:generate mockery --name CheckpointStore --srcpkg github.com/aevon-lab/matview/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
//go:generate mockery --name RecordStore --srcpkg github.com/aevon-lab/matview/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
