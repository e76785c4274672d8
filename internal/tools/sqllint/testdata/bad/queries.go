package bad

const QNoMarker = `select 1;`

const QGood = `--sql 11111111-2222-4333-8444-555555555555
select id from generation_jobs;
`

const QReused = `--sql 11111111-2222-4333-8444-555555555555
delete from generation_jobs;
`

const notSQL = "hello"
